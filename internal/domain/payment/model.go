// Package payment defines the transfer-authorization payload a buyer's
// wallet signs. The layer only constructs and verifies these records; it
// never signs and never moves funds.
package payment

// TransferAuthorization mirrors the EIP-3009 TransferWithAuthorization
// message: a bounded-validity permission for the settlement contract to move
// Value from From to To. All numeric fields are decimal strings so the JSON
// survives big-integer round trips untouched.
type TransferAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32 bytes, 0x-prefixed hex
}

// SignedAuthorization pairs an authorization with the wallet signature the
// client produced. Only the resulting transaction hash is persisted.
type SignedAuthorization struct {
	Signature     string                `json:"signature,omitempty"`
	Authorization TransferAuthorization `json:"authorization"`
}

// TypedDataDomain is the EIP-712 domain separator for the token contract.
type TypedDataDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 type definition.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SigningPayload is everything a wallet needs to produce an EIP-712
// signature for the authorization: domain, type table, primary type and the
// message itself.
type SigningPayload struct {
	Domain      TypedDataDomain             `json:"domain"`
	Types       map[string][]TypedDataField `json:"types"`
	PrimaryType string                      `json:"primaryType"`
	Message     TransferAuthorization       `json:"message"`
}
