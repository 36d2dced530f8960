// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build crumbs_small

package crumbs

// MaxHandlers is the number of opcode handler slots in a Context.
const MaxHandlers = 4
