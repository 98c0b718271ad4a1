package middleware

import (
	"runtime/debug"

	"meridian-hq/vesta/pkg/dispatch"
)

// Recover converts a panic anywhere downstream of this link into a
// PanicError returned up the chain. The dispatcher already guards the
// route phase; mounting Recover early in a server or global chain
// extends the same protection to the middleware that runs before it.
func Recover() dispatch.Middleware {
	return func(c *dispatch.Context, next dispatch.Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &dispatch.PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return next()
	}
}
