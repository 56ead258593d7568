// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// BuildAddress derives the single on-chain output address for c under
// network. DescriptorBare has no output of its own and always fails with
// ErrNoAddressForDescriptor; every other descriptor kind maps to exactly
// one address type.
func (c *Context) BuildAddress(network *chaincfg.Params) (btcutil.Address, error) {
	switch c.topLevelDescriptor {
	case DescriptorBare:
		return nil, newError(ErrNoAddressForDescriptor, NoPosition, "bare")

	case DescriptorPkH:
		kb, err := keyBytes(c.nodes[c.root].Key)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressPubKeyHash(btcutil.Hash160(kb), network)

	case DescriptorWpkh:
		kb, err := keyBytes(c.nodes[c.root].Key)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(kb), network)

	case DescriptorWsh:
		script, err := c.BuildScript()
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressWitnessScriptHash(chainhash.HashB(script), network)

	case DescriptorSh:
		if c.innerDescriptor == DescriptorShWsh {
			return c.buildShWshAddress(network)
		}
		script, err := c.BuildScript()
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(script, network)

	case DescriptorTr:
		return c.buildTaprootAddress(network)

	default:
		return nil, newError(ErrNoAddressForDescriptor, NoPosition, "")
	}
}

// buildShWshAddress handles sh(wsh(...))/sh(wpkh(...)): build the nested
// segwit v0 address first, then wrap its scriptPubKey in a P2SH hash.
func (c *Context) buildShWshAddress(network *chaincfg.Params) (btcutil.Address, error) {
	var inner btcutil.Address
	var err error
	if c.nodes[c.root].Kind == FragRawPkH {
		kb, kerr := keyBytes(c.nodes[c.root].Key)
		if kerr != nil {
			return nil, kerr
		}
		inner, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(kb), network)
	} else {
		var script []byte
		script, err = c.BuildScript()
		if err == nil {
			inner, err = btcutil.NewAddressWitnessScriptHash(chainhash.HashB(script), network)
		}
	}
	if err != nil {
		return nil, err
	}
	redeemScript, err := txscript.PayToAddrScript(inner)
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressScriptHash(redeemScript, network)
}

// buildTaprootAddress computes the tweaked output key for a tr() context:
// key-path only when the script tree is absent, or tweaked by the merkle
// root of the single-leaf script tree otherwise. tr() takes at most one
// script-path expression, so there is never more than one leaf.
func (c *Context) buildTaprootAddress(network *chaincfg.Params) (btcutil.Address, error) {
	root := &c.nodes[c.root]
	internalKey, ok := root.TrKey.AsDefinite()
	if !ok {
		return nil, newError(ErrNonDefiniteKey, NoPosition, root.TrKey.Identifier())
	}

	if root.TrInner == NoChild {
		outputKey := txscript.ComputeTaprootKeyNoScript(internalKey.PubKey())
		return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), network)
	}

	leafScript, err := compileFragment(c.nodes, root.TrInner)
	if err != nil {
		return nil, err
	}
	leaf := txscript.NewTapLeaf(txscript.BaseLeafVersion, leafScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	merkleRoot := tree.RootNode.TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey.PubKey(), merkleRoot[:])
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), network)
}
