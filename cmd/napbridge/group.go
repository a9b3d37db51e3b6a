// cmd/napbridge/group.go
package main

import (
	"context"
	"sync"
)

// group runs the receiver goroutines under one cancelable context.
type group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newGroup(parent context.Context) *group {
	ctx, cancel := context.WithCancel(parent)
	return &group{ctx: ctx, cancel: cancel}
}

// Go runs fn with the group context.
func (g *group) Go(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx)
	}()
}

// Stop cancels the group and returns once every fn has returned.
func (g *group) Stop() {
	g.cancel()
	g.wg.Wait()
}
