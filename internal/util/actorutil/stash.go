package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

type Stash struct {
	stash []stashElem
	// zero means unbounded
	Limit int
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

// Stash keeps msg for later. When Limit is reached the oldest message is
// dropped and returned.
func (stash *Stash) Stash(ctx actor.Context, msg any) (dropped any) {
	if stash.Limit > 0 && len(stash.stash) >= stash.Limit {
		dropped = stash.stash[0].msg
		stash.stash = stash.stash[1:]
	}
	stash.stash = append(stash.stash, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
	return dropped
}

func (stash *Stash) Len() int {
	return len(stash.stash)
}

func (stash *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range stash.stash {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	stash.stash = nil
}

func (stash *Stash) UnstashOldest(ctx actor.Context) {
	if len(stash.stash) > 0 {
		first := stash.stash[0]
		ctx.RequestWithCustomSender(ctx.Self(), first.msg, first.sender)
		stash.stash = stash.stash[1:]
	}
}
