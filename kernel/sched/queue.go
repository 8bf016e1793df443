package sched

import "ringzero/kernel/proc"

// queue is an intrusive FIFO of ready PCBs at one priority level, linked
// through proc.PCB's own Next/Prev fields so enqueueing never allocates.
type queue struct {
	head, tail *proc.PCB
	size       int
}

func (q *queue) pushBack(p *proc.PCB) {
	p.Next, p.Prev = nil, q.tail
	if q.tail != nil {
		q.tail.Next = p
	} else {
		q.head = p
	}
	q.tail = p
	q.size++
}

func (q *queue) popFront() *proc.PCB {
	p := q.head
	if p == nil {
		return nil
	}
	q.head = p.Next
	if q.head != nil {
		q.head.Prev = nil
	} else {
		q.tail = nil
	}
	p.Next, p.Prev = nil, nil
	q.size--
	return p
}

// remove unlinks p from q; used by the aging pass to promote a process
// out of its current level without waiting for it to reach the head.
func (q *queue) remove(p *proc.PCB) {
	if p.Prev != nil {
		p.Prev.Next = p.Next
	} else if q.head == p {
		q.head = p.Next
	}
	if p.Next != nil {
		p.Next.Prev = p.Prev
	} else if q.tail == p {
		q.tail = p.Prev
	}
	p.Next, p.Prev = nil, nil
	q.size--
}

func (q *queue) empty() bool { return q.head == nil }

// forEach visits every PCB currently in q; fn must not itself mutate q.
func (q *queue) forEach(fn func(*proc.PCB)) {
	for p := q.head; p != nil; p = p.Next {
		fn(p)
	}
}
