// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/api"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/ledger/rpcledger"
	"github.com/bureau-foundation/handoff/lib/provision"
	"github.com/bureau-foundation/handoff/lib/ref"
	"github.com/bureau-foundation/handoff/lib/secret"
	"github.com/bureau-foundation/handoff/lib/testutil"
)

func TestKeygenWritesIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.key")
	var out bytes.Buffer
	if err := runKeygen(&out, keygenParams{Kind: keyKindIdentity, Out: path, AsJSON: true}); err != nil {
		t.Fatalf("runKeygen: %v", err)
	}
	var output keygenOutput
	if err := json.Unmarshal(out.Bytes(), &output); err != nil {
		t.Fatalf("decoding output %q: %v", out.String(), err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode %v, want 0600", info.Mode().Perm())
	}
	input, err := secret.ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	seed, err := identity.ParseSeed(input)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	defer seed.Close()
	address, err := identity.AddressOfSeed(seed)
	if err != nil {
		t.Fatalf("AddressOfSeed: %v", err)
	}
	if address.String() != output.Public {
		t.Errorf("file holds %s, output reports %s", address, output.Public)
	}

	if err := runKeygen(&out, keygenParams{Kind: keyKindIdentity, Out: path}); err == nil {
		t.Error("second keygen overwrote the file without --force")
	}
	if err := runKeygen(&out, keygenParams{Kind: keyKindIdentity, Out: path, Force: true}); err != nil {
		t.Errorf("keygen --force: %v", err)
	}
}

func TestKeygenKeyServerKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ks.key")
	var out bytes.Buffer
	if err := runKeygen(&out, keygenParams{Kind: keyKindKeyServer, Out: path}); err != nil {
		t.Fatalf("runKeygen: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "AGE-SECRET-KEY-1") {
		t.Errorf("key file does not hold an age identity")
	}
	if !strings.Contains(out.String(), "public: age1") {
		t.Errorf("output %q lacks the recipient", out.String())
	}
}

func TestKeygenRejects(t *testing.T) {
	var out bytes.Buffer
	if err := runKeygen(&out, keygenParams{Kind: "rsa"}); err == nil {
		t.Error("unknown kind accepted")
	}
	if err := runKeygen(&out, keygenParams{Kind: keyKindIdentity, AsJSON: true}); err == nil {
		t.Error("--json without --out accepted")
	}
	if out.Len() != 0 {
		t.Errorf("rejected keygen wrote %q", out.String())
	}
}

func TestRootSuggestsCommands(t *testing.T) {
	command := root()
	command.Output = &bytes.Buffer{}
	err := command.Execute([]string{"provison"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "provision"`) {
		t.Errorf("error = %v, want a suggestion", err)
	}
	err = command.Execute([]string{"journal", "strandd"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "stranded"`) {
		t.Errorf("error = %v, want a suggestion", err)
	}
}

type failingRunner struct {
	err error
}

func (r failingRunner) Run(context.Context, provision.Request) (*provision.Result, error) {
	return nil, r.err
}

func TestProvisionPrintsFailureReport(t *testing.T) {
	mint := ref.Digest{1}
	ephemeral := ref.MustParseAddress("0x" + strings.Repeat("e0", 32))
	runner := failingRunner{err: &provision.Error{
		RunID:            "run-1",
		Project:          "P1",
		Stage:            provision.StageDecrypt,
		Kind:             provision.KindQuorumUnreachable,
		Capability:       "cap-1",
		Committed:        []ref.Digest{mint},
		EphemeralAddress: ephemeral,
		Err:              errors.New("2 of 3 servers unreachable"),
	}}

	var out bytes.Buffer
	err := runProvision(context.Background(), &out, runner, provision.Request{Project: "P1"}, false)
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != exitProvisionFailed {
		t.Fatalf("error = %v, want exit code %d", err, exitProvisionFailed)
	}
	report := out.String()
	for _, want := range []string{"failed at decrypt (QuorumUnreachable)", "outcome:     stranded", mint.String(), "cap-1 is stranded", ephemeral.String()} {
		if !strings.Contains(report, want) {
			t.Errorf("report lacks %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "holder credential was decrypted") {
		t.Error("report warns about a secret that was never produced")
	}

	out.Reset()
	err = runProvision(context.Background(), &out, runner, provision.Request{Project: "P1"}, true)
	if !errors.As(err, &exit) {
		t.Fatalf("--json error = %v", err)
	}
	var response api.ProvisionResponse
	if err := json.Unmarshal(out.Bytes(), &response); err != nil {
		t.Fatalf("decoding JSON report: %v", err)
	}
	if !response.Stranded || response.Outcome != provision.OutcomeStranded || response.Success {
		t.Errorf("response = %+v", response)
	}
}

func TestProvisionPassesThroughUnclassifiedErrors(t *testing.T) {
	cause := errors.New("boom")
	var out bytes.Buffer
	err := runProvision(context.Background(), &out, failingRunner{err: cause}, provision.Request{}, false)
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, want the runner's error", err)
	}
	if out.Len() != 0 {
		t.Errorf("unclassified failure printed %q", out.String())
	}
}

func TestJournalFilter(t *testing.T) {
	filter, err := journalFilter("P1", "stranded", 5)
	if err != nil {
		t.Fatalf("journalFilter: %v", err)
	}
	if filter.Project != "P1" || filter.Outcome != provision.OutcomeStranded || filter.Limit != 5 {
		t.Errorf("filter = %+v", filter)
	}
	if filter, err := journalFilter("", "unknown", 0); err != nil || filter.Outcome != provision.OutcomeUnknown {
		t.Errorf("journalFilter(unknown) = %+v, %v", filter, err)
	}
	for _, test := range []struct {
		project, outcome string
		limit            int
	}{
		{"", "lost", 0},
		{"", "", -1},
		{"not an id", "", 0},
	} {
		if _, err := journalFilter(test.project, test.outcome, test.limit); err == nil {
			t.Errorf("journalFilter(%q, %q, %d) accepted", test.project, test.outcome, test.limit)
		}
	}
}

func TestPrintRuns(t *testing.T) {
	finished := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reports := []*provision.Report{
		{RunID: "run-1", Project: "P1", Outcome: provision.OutcomeDone, FinishedAt: finished},
		{
			RunID:      "run-2",
			Project:    "P2",
			Outcome:    provision.OutcomeStranded,
			Stage:      provision.StageFinalize,
			Kind:       provision.KindTransferRejected,
			Capability: "cap-2",
			FinishedAt: finished,
		},
	}
	var out bytes.Buffer
	if err := printRuns(&out, reports, false); err != nil {
		t.Fatalf("printRuns: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and two runs:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[2], "finalize (TransferRejected)") || !strings.Contains(lines[2], "cap-2") {
		t.Errorf("stranded row = %q", lines[2])
	}

	out.Reset()
	if err := printRuns(&out, nil, false); err != nil || strings.TrimSpace(out.String()) != "no runs" {
		t.Errorf("empty journal printed %q, %v", out.String(), err)
	}

	out.Reset()
	if err := printRuns(&out, reports, true); err != nil {
		t.Fatalf("printRuns JSON: %v", err)
	}
	var runs []journalRun
	if err := json.Unmarshal(out.Bytes(), &runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 2 || runs[1].Kind != provision.KindTransferRejected {
		t.Errorf("runs = %+v", runs)
	}
}

func TestDevnetServesProvisioning(t *testing.T) {
	ctx := context.Background()
	environment, err := startDevnet(ctx, devnetParams{
		Projects:  []string{"P1", "P2"},
		Servers:   3,
		Threshold: 2,
		GrantTTL:  time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("startDevnet: %v", err)
	}
	t.Cleanup(func() { environment.Close() })
	server := httptest.NewServer(environment.handler)
	t.Cleanup(server.Close)

	info := environment.info
	if len(info.Projects) != 2 || info.Grant == "" || info.Caller == "" {
		t.Fatalf("info = %+v", info)
	}

	request, err := http.NewRequest(http.MethodPost, server.URL+"/v1/projects/P1/provision",
		strings.NewReader(`{"subName": "acme"}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+info.Grant)
	request.Header.Set("Content-Type", "application/json")
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer response.Body.Close()
	var body api.ProvisionResponse
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("status %d, response %+v", response.StatusCode, body)
	}
	if body.HolderAddress != info.Projects[0].Holder {
		t.Errorf("holder %s, want %s", body.HolderAddress, info.Projects[0].Holder)
	}

	client, err := rpcledger.New(rpcledger.Config{Endpoint: server.URL + "/rpc"})
	if err != nil {
		t.Fatalf("rpcledger.New: %v", err)
	}
	defer client.CloseIdleConnections()
	project, err := client.GetObject(ctx, "P1")
	if err != nil {
		t.Fatalf("GetObject over /rpc: %v", err)
	}
	if project.Owner.String() != info.Projects[0].Holder {
		t.Errorf("ledger says P1 is owned by %s", project.Owner)
	}
}

func TestDevnetRejectsBadParams(t *testing.T) {
	ctx := context.Background()
	for name, params := range map[string]devnetParams{
		"no projects": {Servers: 2, Threshold: 1},
		"bad project": {Projects: []string{"a b"}, Servers: 2, Threshold: 1},
		"bad caller":  {Projects: []string{"P1"}, Servers: 2, Threshold: 1, Caller: "0x12"},
		"threshold":   {Projects: []string{"P1"}, Servers: 2, Threshold: 3},
	} {
		t.Run(name, func(t *testing.T) {
			if environment, err := startDevnet(ctx, params, nil); err == nil {
				environment.Close()
				t.Error("startDevnet accepted bad params")
			}
		})
	}
}

func TestRunDevnetServesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader, writer := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- runDevnet(ctx, writer, devnetParams{
			Listen:    "127.0.0.1:0",
			Projects:  []string{"P1"},
			Servers:   2,
			Threshold: 1,
			GrantTTL:  time.Hour,
		}, slog.New(slog.DiscardHandler))
		writer.Close()
	}()

	var info devnetInfo
	if err := json.NewDecoder(reader).Decode(&info); err != nil {
		t.Fatalf("decoding startup info: %v", err)
	}
	response, err := http.Get(info.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusNoContent {
		t.Errorf("healthz status %d", response.StatusCode)
	}
	if info.LedgerRPC != info.URL+"/rpc" {
		t.Errorf("ledger RPC %q", info.LedgerRPC)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "waiting for devnet shutdown"); err != nil {
		t.Errorf("runDevnet: %v", err)
	}
}
