/* Package main: waforthc -- ahead-of-time compiler for WAForth programs

WAForth is a Forth whose interpreter and compiler run inside a WebAssembly core
module. Every word the program defines is compiled, at run time, into a small
word module of its own, which the core hands to its host through the load
import to be instantiated against the core's table and memory.

waforthc turns a Forth program into a standalone artifact in three stages:

Bootstrap: the core runs over the program's source, served one line at a time
through the read import, until it runs out of input or says BYE. Each word
module passed to load is captured in order, as are the dictionary bytes the
program appended to memory (see internal/bootstrap).

Link: a fresh copy of the core is merged with the capture. The dictionary image
becomes a data segment; the dictionary pointer and head globals are
re-initialized to their post-run values; each word's function is relocated
into the core, and installed in the table slot it occupied at run time (see
internal/link).

Emit: an output path ending in .wasm receives the merged module as is.
Anything else is lowered to C with wasm2c, and compiled together with a small
runtime into a native executable (see internal/backend). A native executable
runs the -init program if one was given, and reads from stdin otherwise.

A core module is required; its path, export names, and the native toolchain
are configured in waforthc.toml (see internal/config).

*/
package main
