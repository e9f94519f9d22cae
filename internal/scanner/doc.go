// Package scanner rewrites secret markers inside post containers of a
// parsed HTML document.
//
// A container is an element carrying one of the configured classes
// ("cooked" and "excerpt" by default). Every !{message} in the text of a
// container is replaced by
//
//	<span class="secret-message" title="TOKEN" style="...">REVEALED</span>
//
// where TOKEN is the message encoded with the scanner key and REVEALED is
// that token decoded again. Containers are flagged with
// data-obfuscated-processed="true" before they are rewritten and are never
// rewritten twice, so Scan may be called any number of times on one tree.
package scanner
