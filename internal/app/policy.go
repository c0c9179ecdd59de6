package app

import "github.com/dkeye/roomcast/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to an endpoint whose reliable delivery failed.
type Policy interface {
	OnBackPressure(ns *Namespace, id domain.EndpointID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Namespace, domain.EndpointID) BackpressureAction {
	return KickMember
}

// TolerantPolicy never kicks; slow endpoints just miss frames.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(*Namespace, domain.EndpointID) BackpressureAction {
	return MarkSlow
}
