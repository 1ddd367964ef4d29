// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

// quorate is the command-line companion to the quorate library: it
// creates identities and teams, inspects serialized team graphs,
// issues invitations, and lists the shares persisted in a local
// store. It operates purely on local files; connecting teams to each
// other is the job of an embedding application.
package main
