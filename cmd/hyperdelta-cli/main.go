// Command hyperdelta-cli is a thin composition root over the hyperdelta
// façade: it parses flags, opens an Instance, and dispatches one of a
// handful of subcommands against it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	hyperdelta "hyperdelta.dev/engine"
	"hyperdelta.dev/engine/delta"
	"hyperdelta.dev/engine/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: hyperdelta-cli [-datadir DIR] <append|get|query|materialize|negate> ...")
		return 2
	}

	fs := flag.NewFlagSet("hyperdelta-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("datadir", "", "persistent storage directory; empty uses an in-memory instance")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "missing subcommand")
		return 2
	}

	cfg := hyperdelta.DefaultConfig()
	if *dataDir != "" {
		cfg.Storage = hyperdelta.StoragePersistent
		cfg.DataDir = *dataDir
	}
	inst, err := hyperdelta.Open(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open: %v\n", err)
		return 1
	}
	defer inst.Close()

	ctx := context.Background()
	switch rest[0] {
	case "append":
		return cmdAppend(ctx, inst, rest[1:], stdout, stderr)
	case "get":
		return cmdGet(ctx, inst, rest[1:], stdout, stderr)
	case "query":
		return cmdQuery(ctx, inst, rest[1:], stdout, stderr)
	case "materialize":
		return cmdMaterialize(ctx, inst, rest[1:], stdout, stderr)
	case "negate":
		return cmdNegate(ctx, inst, rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", rest[0])
		return 2
	}
}

// wirePointer is the JSON shape accepted on the "append" subcommand's
// stdin: {"role": "...", "target": <scalar>|{"id":...,"context":...}}.
type wirePointer struct {
	Role   string          `json:"role"`
	Target json.RawMessage `json:"target"`
}

func cmdAppend(ctx context.Context, inst *hyperdelta.Instance, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("append", flag.ContinueOnError)
	fs.SetOutput(stderr)
	author := fs.String("author", "", "delta author")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *author == "" {
		fmt.Fprintln(stderr, "-author is required")
		return 2
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(stderr, "read stdin: %v\n", err)
		return 1
	}
	var wps []wirePointer
	if err := json.Unmarshal(raw, &wps); err != nil {
		fmt.Fprintf(stderr, "decode pointers: %v\n", err)
		return 2
	}
	pointers := make([]delta.Pointer, 0, len(wps))
	for _, wp := range wps {
		t, err := decodeTarget(wp.Target)
		if err != nil {
			fmt.Fprintf(stderr, "decode pointer %q: %v\n", wp.Role, err)
			return 2
		}
		pointers = append(pointers, delta.Pointer{Role: wp.Role, Target: t})
	}

	d, err := inst.CreateDelta(*author, pointers)
	if err != nil {
		fmt.Fprintf(stderr, "create delta: %v\n", err)
		return 1
	}
	if _, err := inst.PersistDelta(ctx, d); err != nil {
		fmt.Fprintf(stderr, "persist delta: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, d.ID)
	return 0
}

func decodeTarget(raw json.RawMessage) (delta.Target, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return delta.Target{}, err
	}
	switch val := v.(type) {
	case nil:
		return delta.NewNullTarget(), nil
	case string:
		return delta.NewStringTarget(val), nil
	case bool:
		return delta.NewBooleanTarget(val), nil
	case float64:
		return delta.NewIntegerTarget(int64(val)), nil
	case map[string]any:
		id, _ := val["id"].(string)
		ctx, _ := val["context"].(string)
		return delta.NewObjectTarget(id, ctx), nil
	default:
		return delta.Target{}, fmt.Errorf("unrecognized target shape %T", v)
	}
}

func cmdGet(ctx context.Context, inst *hyperdelta.Instance, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: get <deltaId> [deltaId...]")
		return 2
	}
	deltas, err := inst.GetDeltas(ctx, args)
	if err != nil {
		fmt.Fprintf(stderr, "get: %v\n", err)
		return 1
	}
	writeDeltas(stdout, deltas)
	return 0
}

// writeDeltas prints one delta per line in the canonical storage encoding,
// the same bytes a replicator consuming d| keys would see.
func writeDeltas(stdout io.Writer, deltas []*delta.Delta) {
	for _, d := range deltas {
		stdout.Write(delta.Encode(d))
		io.WriteString(stdout, "\n")
	}
}

// multiStringFlag accumulates repeatable -author/-target flags.
type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func cmdQuery(ctx context.Context, inst *hyperdelta.Instance, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var authors, targetIDs multiStringFlag
	fs.Var(&authors, "author", "filter by author (repeatable)")
	fs.Var(&targetIDs, "target", "filter by target object id (repeatable)")
	includeNegated := fs.Bool("include-negated", false, "include negated deltas")
	limit := fs.Int("limit", 0, "max results, 0 for unbounded")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	deltas, err := inst.QueryDeltas(ctx, store.Filter{
		Authors:        authors,
		TargetIDs:      targetIDs,
		IncludeNegated: *includeNegated,
		Limit:          *limit,
	})
	if err != nil {
		fmt.Fprintf(stderr, "query: %v\n", err)
		return 1
	}
	writeDeltas(stdout, deltas)
	return 0
}

func cmdMaterialize(ctx context.Context, inst *hyperdelta.Instance, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("materialize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	schemaID := fs.String("schema", "", "HyperSchema id")
	depth := fs.Int("depth", 0, "nested schema expansion depth")
	at := fs.String("at", "", "time-travel instant, epoch millis")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 || *schemaID == "" {
		fmt.Fprintln(stderr, "usage: materialize -schema ID [-depth N] [-at MILLIS] <objectId>")
		return 2
	}

	var view map[string]any
	var err error
	if *at != "" {
		millis, perr := strconv.ParseInt(*at, 10, 64)
		if perr != nil {
			fmt.Fprintf(stderr, "-at: %v\n", perr)
			return 2
		}
		view, err = inst.MaterializeAt(ctx, rest[0], *schemaID, *depth, millis)
	} else {
		view, err = inst.Materialize(ctx, rest[0], *schemaID, *depth)
	}
	if err != nil {
		fmt.Fprintf(stderr, "materialize: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return encodeOrFail(enc, view, stderr)
}

func encodeOrFail(enc *json.Encoder, v any, stderr io.Writer) int {
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}

func cmdNegate(ctx context.Context, inst *hyperdelta.Instance, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("negate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	author := fs.String("author", "", "negation author")
	reason := fs.String("reason", "", "negation reason (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 || *author == "" {
		fmt.Fprintln(stderr, "usage: negate -author AUTHOR [-reason TEXT] <deltaId>")
		return 2
	}
	d, err := inst.Negate(ctx, *author, rest[0], *reason)
	if err != nil {
		fmt.Fprintf(stderr, "negate: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, d.ID)
	return 0
}
