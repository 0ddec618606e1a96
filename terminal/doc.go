/*
Package terminal provides a stateful shell for a viewing session.  Unlike a
graphical viewer, the shell addresses voxels of the current plane by their
position (x, y) within the fetched frame and prints every session change
as it is published, so it serves both as a minimal proofreading tool and as
a scriptable driver of a session.
*/
package terminal
