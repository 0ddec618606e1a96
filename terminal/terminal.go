package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/session"
)

const helpMessage = `
DVID Viewer Terminal Help

	Use 'q' or 'quit' to exit.  Pending merges are saved on exit.

	d                  - increment plane
	s                  - decrement plane
	plane <z>          - go to plane z
	goto <x> <y> <z>   - center the view on a full resolution voxel
	up, down, left, right [steps]  - pan the view
	zoomin, zoomout    - change resolution
	where              - print the view location and zoom

	click <x> <y>      - select or deselect the body at frame position (x, y)
	shift <x> <y>      - add or remove the body at (x, y) from the active list
	r                  - empty the active body list
	t <x> <y>          - merge the body at (x, y) into the selected body
	u                  - undo the last merge
	pending            - list merges not yet saved
	flush              - save all pending merges
	refresh            - reload the current view

	f                  - toggle label colors
	opacity <0-10>     - set label opacity
	label <x> <y>      - print the labels at frame position (x, y)
`

// Shell reads commands and applies them to a session, printing each
// session change as it is published.
type Shell struct {
	sess   *session.Session
	reader *bufio.Reader
	out    io.Writer
}

// New returns a shell reading commands from in and writing to out.  The
// shell attaches itself as an observer of the session.
func New(sess *session.Session, in io.Reader, out io.Writer) *Shell {
	sh := &Shell{
		sess:   sess,
		reader: bufio.NewReader(in),
		out:    out,
	}
	sess.Attach(sh)
	return sh
}

// Close detaches the shell from its session.
func (sh *Shell) Close() {
	sh.sess.Detach(sh)
}

// SessionChanged prints a summary of the change.
func (sh *Shell) SessionChanged(cs session.ChangeSet) {
	if cs.Has(session.LocationChanged) || cs.Has(session.ZoomChanged) {
		fmt.Fprintf(sh.out, "location %s, zoom %d\n", cs.LocationString(), cs.Zoom)
	}
	if cs.Has(session.ActualSelectionChanged) {
		if cs.ActualSelection == 0 {
			fmt.Fprintf(sh.out, "deselected %d\n", cs.PrevActualSelection)
		} else {
			fmt.Fprintf(sh.out, "selected %d\n", cs.ActualSelection)
		}
	}
	if cs.Has(session.ActiveLabelsChanged) {
		fmt.Fprintf(sh.out, "active bodies %s\n", cs.ActiveLabels)
	}
	if cs.Has(session.OpacityChanged) {
		fmt.Fprintf(sh.out, "opacity %d\n", cs.Opacity)
	}
	if cs.Has(session.RetiredChanged) {
		fmt.Fprintf(sh.out, "saved merges retired %v\n", cs.Retired)
	}
	if cs.Has(session.StatusChanged) {
		if cs.Status.Kind == session.WarningStatus {
			fmt.Fprintf(sh.out, "WARNING: %s\n", cs.Status.Message)
		} else {
			fmt.Fprintf(sh.out, "%s\n", cs.Status.Message)
		}
	}
}

func (sh *Shell) prompt(message string) (dvid.Command, error) {
	fmt.Fprint(sh.out, message)
	line, err := sh.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, err
	}
	return dvid.ParseCommand(line), nil
}

// Run takes commands until quit or end of input, then saves pending merges.
func (sh *Shell) Run(ctx context.Context) error {
	fmt.Fprintf(sh.out, "\nDVID Viewer Terminal\n\n")
	for {
		cmd, err := sh.prompt("dvidviewer> ")
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		quit, err := sh.Do(ctx, cmd)
		if err != nil {
			fmt.Fprintf(sh.out, "ERROR: %v\n", err)
		}
		if quit {
			break
		}
	}
	_, err := sh.sess.FlushAll(ctx)
	return err
}

func xyArgs(cmd dvid.Command) (x, y int32, err error) {
	err = cmd.IntArgs(&x, &y)
	return
}

func panSteps(cmd dvid.Command) (int32, error) {
	var arg string
	cmd.CommandArgs(&arg)
	if arg == "" {
		return 1, nil
	}
	v, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number of pan steps %q", arg)
	}
	return int32(v), nil
}

// Do applies one command.  It returns true if the shell should exit.
func (sh *Shell) Do(ctx context.Context, cmd dvid.Command) (quit bool, err error) {
	sess := sh.sess
	switch cmd.Name() {
	case "":
		fmt.Fprintln(sh.out, "Enter 'help' to see commands")
	case "help", "h":
		fmt.Fprint(sh.out, helpMessage)
	case "quit", "q":
		return true, nil
	case "d":
		_, err = sess.IncrementPlane(ctx)
	case "s":
		_, err = sess.DecrementPlane(ctx)
	case "plane":
		var z int32
		if err = cmd.IntArgs(&z); err == nil {
			_, err = sess.SetPlane(ctx, z)
		}
	case "goto":
		var p dvid.Point3d
		if err = cmd.IntArgs(&p[0], &p[1], &p[2]); err == nil {
			_, err = sess.SetLocation(ctx, p)
		}
	case "up", "down", "left", "right":
		var steps int32
		if steps, err = panSteps(cmd); err != nil {
			return
		}
		switch cmd.Name() {
		case "up":
			_, err = sess.Pan(ctx, 0, -steps)
		case "down":
			_, err = sess.Pan(ctx, 0, steps)
		case "left":
			_, err = sess.Pan(ctx, -steps, 0)
		case "right":
			_, err = sess.Pan(ctx, steps, 0)
		}
	case "zoomin":
		var cs session.ChangeSet
		if cs, err = sess.ZoomIn(ctx); err == nil && cs.Empty() {
			fmt.Fprintln(sh.out, "Already at full resolution")
		}
	case "zoomout":
		var cs session.ChangeSet
		if cs, err = sess.ZoomOut(ctx); err == nil && cs.Empty() {
			fmt.Fprintln(sh.out, "Already at coarsest resolution")
		}
	case "where":
		loc := sess.Location()
		fmt.Fprintf(sh.out, "location %d %d %d, zoom %d of %d\n", loc[0], loc[1], loc[2], sess.Zoom(), sess.MaxZoom())
	case "click":
		var x, y int32
		if x, y, err = xyArgs(cmd); err == nil {
			_, err = sess.SelectLabel(x, y)
		}
	case "shift":
		var x, y int32
		if x, y, err = xyArgs(cmd); err == nil {
			_, err = sess.ActiveLabel(x, y)
		}
	case "r":
		_, err = sess.ResetActiveLabels()
	case "t":
		var x, y int32
		if x, y, err = xyArgs(cmd); err != nil {
			return
		}
		var cs session.ChangeSet
		if cs, err = sess.MergeLabel(ctx, x, y); err == nil && cs.Empty() {
			fmt.Fprintln(sh.out, "Nothing to merge")
		}
	case "u":
		_, err = sess.Undo(ctx)
	case "pending":
		pending := sess.Queue().Pending()
		if len(pending) == 0 {
			fmt.Fprintln(sh.out, "No pending merges")
		}
		for i, d := range pending {
			fmt.Fprintf(sh.out, "%d: %s\n", i+1, d)
		}
	case "flush":
		var cs session.ChangeSet
		if cs, err = sess.FlushAll(ctx); err == nil && cs.Empty() {
			fmt.Fprintln(sh.out, "No pending merges")
		}
	case "refresh":
		_, err = sess.Refresh(ctx)
	case "f":
		_, err = sess.ToggleShowAll()
	case "opacity":
		var v int32
		if err = cmd.IntArgs(&v); err == nil {
			_, err = sess.SetOpacity(int(v))
		}
	case "label":
		var x, y int32
		if x, y, err = xyArgs(cmd); err != nil {
			return
		}
		f := sess.Frame()
		raw := f.RawLabel(x, y)
		fmt.Fprintf(sh.out, "label %d -> body %d, display %d, at %s\n",
			raw, sess.Queue().Resolve(raw), f.Display(x, y), f.Location(x, y))
	default:
		err = fmt.Errorf("unknown command %q, enter 'help' to see commands", cmd.Name())
	}
	return
}
