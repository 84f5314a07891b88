// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// clasp-keygen prints a fresh Ed25519 keypair, grounded on the teacher's
// utils/gen-keypair.go. The public key is the value an operator sets as
// capabilityIssuerKey (authchain/capability) or an entity directory's
// trust anchor (authchain/entity); the private key signs tokens offline.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "CAPABILITY_PUBLIC_KEY=%s\nCAPABILITY_PRIVATE_KEY=%s\n",
		base64.StdEncoding.EncodeToString(pub),
		base64.StdEncoding.EncodeToString(priv))
}
