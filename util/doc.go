// Package util holds small helpers shared across packages: size parsing,
// secret masking, file name sanitizing and pointer helpers.
package util
