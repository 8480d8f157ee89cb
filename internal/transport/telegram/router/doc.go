// Package router turns incoming chat messages into reminder commands.
//
// Each command carries a declarative Policy that is evaluated by Authorize
// before the handler runs. Handlers execute on a bounded worker pool owned
// by DispatchLoop.
package router
