package escrow

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SecretLength is the byte width of a withdrawal secret.
const SecretLength = 32

// HashSecret returns the single-fill hashlock commitment for a secret.
func HashSecret(secret [SecretLength]byte) common.Hash {
	return ethcrypto.Keccak256Hash(secret[:])
}

// VerifySecret reports whether the secret opens the given hashlock.
func VerifySecret(hashlock common.Hash, secret [SecretLength]byte) bool {
	return HashSecret(secret) == hashlock
}

// FillProof authorizes one partial fill of a multi-fill swap. The leaf commits
// to the leaf index, the hash of the fill secret and the exact principal
// fraction the fill may claim, so a proof replayed against a different index
// or fraction resolves to a different leaf and fails verification.
type FillProof struct {
	Index      uint64
	SecretHash common.Hash
	Fraction   *big.Int
	Path       []common.Hash
}

// FillLeaf computes the leaf commitment for one partial-fill secret.
func FillLeaf(index uint64, secretHash common.Hash, fraction *big.Int) common.Hash {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return ethcrypto.Keccak256Hash(
		idx[:],
		secretHash.Bytes(),
		common.LeftPadBytes(bigIntBytes(fraction), 32),
	)
}

// VerifyFill checks a Merkle inclusion proof for one partial fill against the
// stored root. Interior nodes hash the sorted pair of their children, so the
// proof path needs no left/right direction bits.
func VerifyFill(root common.Hash, proof FillProof) bool {
	node := FillLeaf(proof.Index, proof.SecretHash, proof.Fraction)
	for _, sibling := range proof.Path {
		node = hashPair(node, sibling)
	}
	return node == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return ethcrypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// FillTree is a Merkle commitment over the partial-fill secrets of a multi-fill
// swap. The maker publishes only the root; the resolver keeps the tree to
// derive per-fill proofs.
type FillTree struct {
	leaves []common.Hash
	levels [][]common.Hash
}

// NewFillTree builds the commitment tree for the given secret hashes and
// principal fractions. Leaf i commits to (i, secretHashes[i], fractions[i]).
func NewFillTree(secretHashes []common.Hash, fractions []*big.Int) (*FillTree, error) {
	if len(secretHashes) == 0 {
		return nil, ErrEmptyFillTree
	}
	if len(secretHashes) != len(fractions) {
		return nil, ErrLengthMismatch
	}
	leaves := make([]common.Hash, len(secretHashes))
	for i := range secretHashes {
		leaves[i] = FillLeaf(uint64(i), secretHashes[i], fractions[i])
	}
	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &FillTree{leaves: leaves, levels: levels}, nil
}

// Root returns the Merkle root committed to in the order's hashlock field.
func (t *FillTree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Path returns the sibling path proving inclusion of leaf index.
func (t *FillTree) Path(index uint64) ([]common.Hash, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, ErrLeafOutOfRange
	}
	var path []common.Hash
	pos := int(index)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			path = append(path, level[sibling])
		}
		pos /= 2
	}
	return path, nil
}
