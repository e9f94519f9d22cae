// Package pages keeps the parsed HTML documents of the active content
// snapshot and the rendered bytes served for them.
//
// The Store is the single executor for scanning: Ready, Notify and Render
// all hold its mutex. Ready is the one-shot page-ready trigger; Notify runs
// on every content change and only re-parses pages whose bytes changed,
// so processed containers in unchanged pages stay processed.
package pages
