// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package collatorprotocol

//go:generate mockgen -destination=mocks_test.go -package=$GOPACKAGE . ClaimQueueSource
