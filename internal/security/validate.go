// Package security implements the validators, sanitizers, and audit sink
// of §4.8: the boundary every command execution, file import, and
// rendered-output path crosses before it leaves the evaluator.
//
// The taxonomy of results and event types is carried over from the
// original implementation's security.h (SECURITY_* / AUDIT_*), adapted
// to Go enums instead of C ints.
package security

import (
	"path/filepath"
	"strings"
)

// Result is the outcome of a validator call.
type Result int

const (
	Ok Result = iota
	InvalidInput
	InjectionDetected
	ResourceLimit
	Destructive
	Privilege
	Network
	PermissionDenied
	Traversal
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case InvalidInput:
		return "invalid_input"
	case InjectionDetected:
		return "injection_detected"
	case ResourceLimit:
		return "resource_limit"
	case Destructive:
		return "destructive"
	case Privilege:
		return "privilege"
	case Network:
		return "network"
	case PermissionDenied:
		return "permission_denied"
	case Traversal:
		return "traversal"
	default:
		return "unknown"
	}
}

// injectionFragments is the closed enumeration of §4.8's validate_input
// table: substring matching, case-insensitive, never regex.
var injectionFragments = []string{
	"'; drop", "<script", "javascript:", "$(", "`rm", "${ifs}",
	"-- ", "/*!", "union select", "onerror=", "onload=",
}

// ValidateInput rejects s if it exceeds maxLen, contains an embedded NUL
// not at the very end, or matches one of the closed injection fragments.
func ValidateInput(s string, maxLen int) Result {
	if len(s) > maxLen {
		return ResourceLimit
	}
	if idx := strings.IndexByte(s, 0); idx >= 0 && idx != len(s)-1 {
		return InvalidInput
	}
	lower := strings.ToLower(s)
	for _, frag := range injectionFragments {
		if strings.Contains(lower, frag) {
			return InjectionDetected
		}
	}
	return Ok
}

var dangerousCommands = []string{"rm -rf", "dd if=", "mkfs", "fdisk"}
var privilegeCommands = []string{"sudo", "su", "chmod 777", "chown", "passwd", "/etc/passwd", "/etc/shadow"}
var networkCommands = map[string]bool{
	"wget": true, "curl": true, "nc": true, "netcat": true, "telnet": true,
	"ssh": true, "scp": true, "rsync": true, "mount": true, "umount": true,
}
var safeCommands = map[string]bool{
	"echo": true, "date": true, "ls": true, "pwd": true, "whoami": true,
	"id": true, "uptime": true, "uname": true, "hostname": true, "ps": true,
	"df": true, "free": true, "head": true, "tail": true, "grep": true,
	"wc": true, "sort": true, "uniq": true, "cut": true, "awk": true, "sed": true,
}

// injectionChars short-circuits validate_command before any tokenization,
// per §4.8: shell metacharacters anywhere in the string are Injection
// regardless of which command they appear in.
var injectionChars = []string{";", "&&", "||", "|", "`", "$(", ">", "<"}

// ValidateCommand classifies cmd against the whitelist/blacklist tables
// of §4.8, default-deny.
func ValidateCommand(cmd string) Result {
	for _, ch := range injectionChars {
		if strings.Contains(cmd, ch) {
			return InjectionDetected
		}
	}
	lower := strings.ToLower(cmd)
	for _, d := range dangerousCommands {
		if strings.HasPrefix(lower, d) {
			return Destructive
		}
	}
	for _, p := range privilegeCommands {
		if strings.Contains(lower, p) {
			return Privilege
		}
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return InvalidInput
	}
	first := strings.ToLower(fields[0])
	if networkCommands[first] {
		return Network
	}
	if safeCommands[first] {
		return Ok
	}
	return PermissionDenied
}

// ValidatePath rejects traversal sequences and requires the canonicalized
// path to remain a `/`-delimited prefix of the canonicalized base.
func ValidatePath(path, allowedBase string) Result {
	if path == "" {
		return InvalidInput
	}
	lower := strings.ToLower(path)
	for _, bad := range []string{"..", "%2e%2e"} {
		if strings.Contains(lower, bad) {
			return Traversal
		}
	}
	cleanPath := filepath.Clean(filepath.Join(allowedBase, path))
	cleanBase := filepath.Clean(allowedBase)
	if cleanPath != cleanBase && !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) {
		return Traversal
	}
	return Ok
}
