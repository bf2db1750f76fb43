package app

import (
	"context"
	"errors"

	"anypush/internal/content"
	"anypush/internal/dispatch"
	"anypush/internal/notice"
	logx "anypush/pkg/logx"
)

// dispatcher is the part of *dispatch.Dispatcher the push actions need.
type dispatcher interface {
	Dispatch(ctx context.Context, item content.Item) (dispatch.Result, error)
	Test(ctx context.Context, key string) (dispatch.Outcome, error)
}

// Pusher is the action boundary: it runs a dispatch and turns whatever comes
// back into notices. It never returns an error.
type Pusher struct {
	d       dispatcher
	notices *notice.Center
	log     logx.Logger
}

func NewPusher(d dispatcher, notices *notice.Center, log logx.Logger) *Pusher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if notices == nil {
		notices = notice.NewCenter(log, 0)
	}
	return &Pusher{d: d, notices: notices, log: log.With(logx.String("comp", "push"))}
}

// Push dispatches item to every enabled service. A success notice and a
// failure notice may both be shown for one push.
func (p *Pusher) Push(ctx context.Context, item content.Item) notice.Report {
	res, err := p.d.Dispatch(ctx, item)
	rep := notice.Report{
		DispatchID: res.ID,
		Success:    res.SuccessCount,
		Failure:    res.FailureCount,
		Services:   serviceOutcomes(res.Outcomes),
	}

	switch {
	case errors.Is(err, dispatch.ErrNotConfigured):
		rep.Notices = append(rep.Notices, notice.NotConfigured())
	case errors.Is(err, dispatch.ErrNoServicesEnabled):
		rep.Notices = append(rep.Notices, notice.NoServicesEnabled())
	case err != nil:
		rep.Notices = append(rep.Notices, notice.Failed(err))
	default:
		if res.SuccessCount > 0 {
			rep.Notices = append(rep.Notices, notice.Succeeded(res.SuccessCount))
		}
		if res.FailureCount > 0 {
			rep.Notices = append(rep.Notices, notice.PartlyFailed(res.FailureCount))
		}
	}
	p.show(ctx, rep)
	return rep
}

// Test sends the fixed test message to one service, enabled or not.
func (p *Pusher) Test(ctx context.Context, service string) notice.Report {
	out, err := p.d.Test(ctx, service)
	var rep notice.Report
	switch {
	case errors.Is(err, dispatch.ErrNotConfigured):
		rep.Notices = []notice.Notice{notice.NotConfigured()}
	case err != nil:
		rep.Notices = []notice.Notice{notice.Failed(err)}
	default:
		rep.Services = serviceOutcomes([]dispatch.Outcome{out})
		if out.Err != nil {
			rep.Failure = 1
			rep.Notices = []notice.Notice{notice.Failed(out.Err)}
		} else {
			rep.Success = 1
			rep.Notices = []notice.Notice{notice.Succeeded(1)}
		}
	}
	p.show(ctx, rep)
	return rep
}

func (p *Pusher) show(ctx context.Context, rep notice.Report) {
	for _, n := range rep.Notices {
		p.notices.Show(ctx, n)
	}
}

func serviceOutcomes(in []dispatch.Outcome) []notice.ServiceOutcome {
	if len(in) == 0 {
		return nil
	}
	out := make([]notice.ServiceOutcome, 0, len(in))
	for _, o := range in {
		so := notice.ServiceOutcome{
			Service:    o.Service,
			Name:       o.Name,
			OK:         o.Err == nil,
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			so.Error = o.Err.Error()
		}
		out = append(out, so)
	}
	return out
}
