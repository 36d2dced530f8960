// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !crumbs_small

package crumbs

// MaxHandlers is the number of opcode handler slots in a Context.
// Build with -tags crumbs_small to shrink the table on small targets.
const MaxHandlers = 16
