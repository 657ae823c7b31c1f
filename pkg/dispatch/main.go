// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes trapped extension calls to the handlers registered for their code.
// Integrations register their handlers once, at install time; after that the table never changes.
package dispatch
