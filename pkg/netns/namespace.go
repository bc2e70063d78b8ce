package netns

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Exists reports whether the named namespace is present on the host.
func Exists(ctx context.Context, ex Executor, name string) (bool, error) {
	out, err := ex.Execute(ctx, "", []string{"ip", "netns", "list"})
	if err != nil {
		return false, fmt.Errorf("listing namespaces: %w", err)
	}
	for _, ns := range ParseNamespaceList(out) {
		if ns == name {
			return true, nil
		}
	}
	return false, nil
}

// Add creates the named namespace and brings its loopback up.
func Add(ctx context.Context, ex Executor, name string) error {
	if _, err := ex.Execute(ctx, "", []string{"ip", "netns", "add", name}); err != nil {
		return fmt.Errorf("creating namespace %s: %w", name, err)
	}
	if _, err := ex.Execute(ctx, name, []string{"ip", "link", "set", "lo", "up"}); err != nil {
		return fmt.Errorf("bringing up loopback in %s: %w", name, err)
	}
	return nil
}

// Delete removes the named namespace.
func Delete(ctx context.Context, ex Executor, name string) error {
	if _, err := ex.Execute(ctx, "", []string{"ip", "netns", "delete", name}); err != nil {
		return fmt.Errorf("deleting namespace %s: %w", name, err)
	}
	return nil
}

// Devices lists the link names inside the namespace.
func Devices(ctx context.Context, ex Executor, name string) ([]string, error) {
	out, err := ex.Execute(ctx, name, []string{"ip", "-o", "link", "show"})
	if err != nil {
		return nil, fmt.Errorf("listing devices in %s: %w", name, err)
	}
	return ParseLinkNames(out), nil
}

// ParseNamespaceList extracts namespace names from `ip netns list` output,
// whose lines look like "qlbaas-p1 (id: 3)".
func ParseNamespaceList(out string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

// ParseLinkNames extracts link names from `ip -o link show` output, whose
// lines look like "5: tap1a2b@if6: <BROADCAST,UP> mtu 1500 ...".
func ParseLinkNames(out string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 3)
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[1])
		if i := strings.Index(name, "@"); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
