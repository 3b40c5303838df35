package payment

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/groundscore/commerce_layer/internal/domain/payment"
)

// Digest computes the EIP-712 hash the wallet signs:
// keccak256("\x19\x01" || domainSeparator || structHash).
func Digest(p payment.SigningPayload) ([]byte, error) {
	chainID, ok := new(big.Int).SetString(p.Domain.ChainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", p.Domain.ChainID)
	}

	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types, len(p.Types)),
		PrimaryType: p.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              p.Domain.Name,
			Version:           p.Domain.Version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: p.Domain.VerifyingContract,
		},
		Message: authorizationMessage(p.Message),
	}
	for typeName, fields := range p.Types {
		converted := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			converted[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[typeName] = converted
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}

	raw := append([]byte{0x19, 0x01}, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverSigner recovers the address that produced signature over the
// payload digest. Used as an optional pre-check before handing a signed
// authorization to the settlement layer.
func RecoverSigner(p payment.SigningPayload, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}
	digest, err := Digest(p)
	if err != nil {
		return "", err
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func authorizationMessage(auth payment.TransferAuthorization) map[string]interface{} {
	return map[string]interface{}{
		"from":        common.HexToAddress(auth.From).Hex(),
		"to":          common.HexToAddress(auth.To).Hex(),
		"value":       mustBig(auth.Value),
		"validAfter":  mustBig(auth.ValidAfter),
		"validBefore": mustBig(auth.ValidBefore),
		"nonce":       hexBytes(auth.Nonce),
	}
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func hexBytes(s string) []byte {
	return common.FromHex(s)
}
