// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/handoff/cmd/handoff/cli"
	"github.com/bureau-foundation/handoff/lib/identity"
	"github.com/bureau-foundation/handoff/lib/sealed"
	"github.com/bureau-foundation/handoff/lib/secret"
)

const (
	keyKindIdentity  = "ed25519"
	keyKindKeyServer = "age"
)

type keygenParams struct {
	Kind   string
	Out    string
	Force  bool
	AsJSON bool
}

type keygenOutput struct {
	Kind string `json:"kind"`

	// Public is the ledger address for identities and the age
	// recipient for key-server keys.
	Public string `json:"public"`
	File   string `json:"file,omitempty"`
}

func keygenCommand() *cli.Command {
	var params keygenParams
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an identity or key-server key",
		Description: `Generate a key and write its secret to --out (mode 0600).

--kind ed25519 produces an admin or holder identity in ed25519: form;
--kind age produces a key-server identity whose recipient goes into
HANDOFF_KEY_SERVER_RECIPIENTS. Without --out the secret is written to
stdout.`,
		Usage: "handoff keygen [--kind ed25519|age] [--out FILE] [--json]",
		Examples: []cli.Example{
			{Description: "Create the admin identity", Command: "handoff keygen --out admin.key"},
			{Description: "Create a key-server identity", Command: "handoff keygen --kind age --out ks-1.key"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flags.StringVar(&params.Kind, "kind", keyKindIdentity, "key kind: ed25519 or age")
			flags.StringVar(&params.Out, "out", "", "write the secret to this file instead of stdout")
			flags.BoolVar(&params.Force, "force", false, "overwrite an existing --out file")
			flags.BoolVar(&params.AsJSON, "json", false, "print the result as JSON")
			return flags
		},
		Run: func(args []string) error {
			if err := rejectArgs(args); err != nil {
				return err
			}
			return runKeygen(os.Stdout, params)
		},
	}
}

func runKeygen(w io.Writer, params keygenParams) error {
	text, public, err := generateKey(params.Kind)
	if err != nil {
		return err
	}
	defer text.Close()

	output := keygenOutput{Kind: params.Kind, Public: public, File: params.Out}
	if params.Out == "" {
		if params.AsJSON {
			return fmt.Errorf("--json needs --out so the secret stays out of the JSON document")
		}
		fmt.Fprintf(w, "%s\n", text.Reveal())
		fmt.Fprintf(os.Stderr, "public: %s\n", public)
		return nil
	}
	if err := writeSecretFile(params.Out, text, params.Force); err != nil {
		return err
	}
	if params.AsJSON {
		return cli.WriteJSON(w, output)
	}
	fmt.Fprintf(w, "wrote %s\npublic: %s\n", params.Out, public)
	return nil
}

func generateKey(kind string) (*secret.Buffer, string, error) {
	switch kind {
	case keyKindIdentity:
		seed, address, err := identity.Generate()
		if err != nil {
			return nil, "", err
		}
		defer seed.Close()
		text, err := identity.EncodeSecret(seed)
		if err != nil {
			return nil, "", err
		}
		return text, address.String(), nil
	case keyKindKeyServer:
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			return nil, "", err
		}
		return keypair.PrivateKey, keypair.PublicKey, nil
	}
	return nil, "", fmt.Errorf("unknown key kind %q (want %s or %s)", kind, keyKindIdentity, keyKindKeyServer)
}

func writeSecretFile(path string, text *secret.Buffer, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	_, err = file.Write(text.Bytes())
	if err == nil {
		_, err = file.Write([]byte{'\n'})
	}
	if err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}
