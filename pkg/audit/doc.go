// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit provides audit logging for the proxy's admin and
// MCP-over-HTTP request paths.
package audit
