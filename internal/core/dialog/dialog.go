// Package dialog defines the request/response contract for asking the user a
// question. The sync engine uses it exactly twice: choosing local-vs-remote on
// an unresolved conflict, and informing the user that sync was disabled after
// an unrecoverable error.
package dialog

import "context"

// Question is a single prompt with a closed set of options.
type Question struct {
	Title   string
	Text    string
	Options []string
}

// Answer carries the option the user picked.
type Answer struct {
	Option string
}

// Asker presents a question and returns the chosen answer.
type Asker interface {
	Pose(ctx context.Context, q Question) (Answer, error)
}

// AskerFunc adapts a function to the Asker interface.
type AskerFunc func(ctx context.Context, q Question) (Answer, error)

// Pose implements Asker.
func (f AskerFunc) Pose(ctx context.Context, q Question) (Answer, error) { return f(ctx, q) }

// Static always answers with a fixed option; when the option is empty it picks
// the question's first option. Used for non-interactive runs and tests.
type Static struct {
	Option string
}

// Pose implements Asker.
func (s Static) Pose(ctx context.Context, q Question) (Answer, error) {
	if s.Option != "" {
		return Answer{Option: s.Option}, nil
	}
	if len(q.Options) > 0 {
		return Answer{Option: q.Options[0]}, nil
	}
	return Answer{}, nil
}
