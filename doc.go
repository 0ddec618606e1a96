/*
Package dvidviewer is a terminal proofreading client for label volumes stored
in a DVID server.  A session shows one orthogonal plane of a grayscale and a
label volume, lets a proofreader pick a body, and queues merge decisions that
can be undone until they are persisted back to DVID.

Layout

	dvid          logging, points, and command parsing shared by all packages
	labels        label decisions, merge operations, and display masks
	store         the Store interface, a plane cache, and two implementations
	                store/dvidstore  HTTP client for a DVID server
	                store/memstore   in-memory volume used by tests and demos
	mergequeue    bounded queue of undoable merges over a union-find mapping
	mutlog        journal of merge decisions (file log and Kafka)
	session       viewer state machine and change notification
	config        TOML configuration
	terminal      line-oriented shell driving a session
	cmd/dvidviewer  the command-line entry point

Running dvidviewer

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	dvidviewer [options] --server=<host:port> --uuid=<uuid>
	dvidviewer --config=<toml file>
	dvidviewer --demo

Merges are written to DVID once more than queue_depth decisions are pending,
or when the shell exits.  If a journal file is configured, unsaved decisions
from a previous run can be restored with --recover.
*/
package dvidviewer
