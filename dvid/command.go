package dvid

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a tokenized line typed into an interactive shell.  The first
// item is the command name and the rest are arguments or optional settings
// of the form "<key>=<value>".
type Command []string

// ParseCommand splits a line on whitespace.
func ParseCommand(line string) Command {
	return Command(strings.Fields(line))
}

// String returns a space-separated command line
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Parameter scans a command for any "key=value" argument and returns
// the value of the passed 'key'.
func (cmd Command) Parameter(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.Split(arg, "=")
			if len(elems) == 2 && elems[0] == key {
				value = elems[1]
				found = true
				return
			}
		}
	}
	return
}

// CommandArgs sets a variadic argument set of string pointers to command
// arguments, ignoring setting arguments of the form "<key>=<value>".
// If there aren't enough arguments to set a target, the target is set to the
// empty string.  It returns an 'overflow' slice that has all arguments
// beyond those needed for targets.
func (cmd Command) CommandArgs(targets ...*string) (overflow []string) {
	for _, target := range targets {
		*target = ""
	}
	if len(cmd) < 2 {
		return
	}
	var curTarget int
	for _, arg := range cmd[1:] {
		if strings.Contains(arg, "=") {
			continue
		}
		if curTarget >= len(targets) {
			overflow = append(overflow, arg)
		} else {
			*(targets[curTarget]) = arg
		}
		curTarget++
	}
	return
}

// IntArgs parses exactly len(targets) integer arguments.
func (cmd Command) IntArgs(targets ...*int32) error {
	strs := make([]string, len(targets))
	ptrs := make([]*string, len(targets))
	for i := range strs {
		ptrs[i] = &strs[i]
	}
	if overflow := cmd.CommandArgs(ptrs...); len(overflow) != 0 {
		return fmt.Errorf("%q takes %d arguments, got extra %v", cmd.Name(), len(targets), overflow)
	}
	for i, s := range strs {
		if s == "" {
			return fmt.Errorf("%q takes %d arguments, got %d", cmd.Name(), len(targets), i)
		}
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("bad argument %q for %q: %v", s, cmd.Name(), err)
		}
		*targets[i] = int32(v)
	}
	return nil
}
