// Package dispatch fans one content item out to every enabled push service.
//
// A Dispatcher reads the service entries and push settings through a
// ConfigProvider, formats the item once, builds one Channel per enabled
// service from its Registry and runs them concurrently. Each channel gets its
// own timeout; a failing channel never cancels the others. There is no retry.
package dispatch
