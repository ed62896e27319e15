package config

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// directives is the syntactic result of scanning one config file,
// before merge and validation. Kept separate from Policy/Config so a
// malformed or out-of-bounds file can be rejected wholesale without
// having mutated anything live (rollback-on-error).
type directives struct {
	listen []string

	ipAllow []netip.Addr
	ipDeny  []netip.Addr
	ipBans  []ipRange

	nickAllow []string
	nickDeny  []string
	nickMin   *int
	nickMax   *int

	msgDeny []string
	msgMin  *int
	msgMax  *int
}

// parseReader scans one configuration file's contents. '#' introduces
// a comment; blank lines are skipped; every other line is a command
// token followed by whitespace-separated arguments.
func parseReader(r io.Reader) (*directives, error) {
	d := &directives{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := d.applyLine(fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseFile scans the config file at path.
func ParseFile(path string) (*directives, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseReader(f)
}

func (d *directives) applyLine(fields []string) error {
	cmd := fields[0]
	args := fields[1:]
	switch cmd {
	case "listen":
		if len(args) != 1 {
			return fmt.Errorf("listen: want 1 argument, got %d", len(args))
		}
		d.listen = append(d.listen, args[0])
	case "ip":
		return d.applyIP(args)
	case "nickname":
		return d.applyNickname(args)
	case "message":
		return d.applyMessage(args)
	default:
		return fmt.Errorf("unrecognized command %q", cmd)
	}
	return nil
}

func (d *directives) applyIP(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("ip: missing sub-command")
	}
	switch args[0] {
	case "allow":
		if len(args) != 2 {
			return fmt.Errorf("ip allow: want 1 argument, got %d", len(args)-1)
		}
		addr, err := netip.ParseAddr(args[1])
		if err != nil {
			return fmt.Errorf("ip allow: %w", err)
		}
		d.ipAllow = append(d.ipAllow, addr)
	case "ban":
		if len(args) != 2 {
			return fmt.Errorf("ip ban: want 1 argument, got %d", len(args)-1)
		}
		addr, err := netip.ParseAddr(args[1])
		if err != nil {
			return fmt.Errorf("ip ban: %w", err)
		}
		d.ipDeny = append(d.ipDeny, addr)
	case "ban-range":
		if len(args) != 3 {
			return fmt.Errorf("ip ban-range: want 2 arguments, got %d", len(args)-1)
		}
		from, err := netip.ParseAddr(args[1])
		if err != nil {
			return fmt.Errorf("ip ban-range: %w", err)
		}
		to, err := netip.ParseAddr(args[2])
		if err != nil {
			return fmt.Errorf("ip ban-range: %w", err)
		}
		if from.Is4() != to.Is4() {
			return fmt.Errorf("ip ban-range: endpoints must share an address family")
		}
		d.ipBans = append(d.ipBans, newIPRange(from, to))
	default:
		return fmt.Errorf("ip: unrecognized sub-command %q", args[0])
	}
	return nil
}

func (d *directives) applyNickname(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("nickname: missing sub-command")
	}
	switch args[0] {
	case "allow":
		if len(args) != 2 {
			return fmt.Errorf("nickname allow: want 1 argument, got %d", len(args)-1)
		}
		d.nickAllow = append(d.nickAllow, args[1])
	case "ban":
		if len(args) != 2 {
			return fmt.Errorf("nickname ban: want 1 argument, got %d", len(args)-1)
		}
		if _, err := regexp.Compile(args[1]); err != nil {
			return fmt.Errorf("nickname ban: %w", err)
		}
		d.nickDeny = append(d.nickDeny, args[1])
	case "min-length":
		n, err := parseBound(args, 1, 255)
		if err != nil {
			return fmt.Errorf("nickname min-length: %w", err)
		}
		d.nickMin = &n
	case "max-length":
		n, err := parseBound(args, 1, 255)
		if err != nil {
			return fmt.Errorf("nickname max-length: %w", err)
		}
		d.nickMax = &n
	default:
		return fmt.Errorf("nickname: unrecognized sub-command %q", args[0])
	}
	return nil
}

func (d *directives) applyMessage(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("message: missing sub-command")
	}
	switch args[0] {
	case "ban":
		if len(args) != 2 {
			return fmt.Errorf("message ban: want 1 argument, got %d", len(args)-1)
		}
		if _, err := regexp.Compile(args[1]); err != nil {
			return fmt.Errorf("message ban: %w", err)
		}
		d.msgDeny = append(d.msgDeny, args[1])
	case "min-length":
		n, err := parseBound(args, 1, 65535)
		if err != nil {
			return fmt.Errorf("message min-length: %w", err)
		}
		d.msgMin = &n
	case "max-length":
		n, err := parseBound(args, 1, 65535)
		if err != nil {
			return fmt.Errorf("message max-length: %w", err)
		}
		d.msgMax = &n
	default:
		return fmt.Errorf("message: unrecognized sub-command %q", args[0])
	}
	return nil
}

func parseBound(args []string, min, max int) (int, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("want 1 argument, got %d", len(args)-1)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", n, min, max)
	}
	return n, nil
}
