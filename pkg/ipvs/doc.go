// Package ipvs reads and writes the kernel virtual server table through the
// ipvsadm command line.
//
// ipvsadm has no structured output, so ParseListing and ParseStats turn its
// right-aligned text (`ipvsadm -Ln` and `ipvsadm -Ln --stats`) into Service
// and ServiceStats records. A row with a non-blank leading column starts a
// service; an indented row starting with "->" is a real server of the last
// service. FormatListing and FormatStats render the same layout and are what
// the in-memory simulator in ipvstest prints.
//
// The *Command functions build the argv for every table mutation the agent
// issues. They do not run anything; pass them to a netns.Executor.
package ipvs
