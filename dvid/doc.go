/*
Package dvid provides types, constants, and functions shared by all viewer
packages: 2d/3d points, logging at multiple severities with optional rotating
log files, and small utilities.
*/
package dvid
