package ice

import (
	"fmt"

	"github.com/pion/stun"
)

// The stun package predefines the binding request and response types,
// but not the indication.
var bindingIndication = stun.NewType(stun.MethodBinding, stun.ClassIndication)

func assertInboundUsername(m *stun.Message, expectedUsername string) error {
	var username stun.Username
	if err := username.GetFrom(m); err != nil {
		return err
	}
	if string(username) != expectedUsername {
		return fmt.Errorf("%w: expected(%x) actual(%x)", ErrAuthenticationMismatch, expectedUsername, string(username))
	}

	return nil
}

func assertInboundMessageIntegrity(m *stun.Message, key []byte) error {
	messageIntegrityAttr := stun.MessageIntegrity(key)
	if err := messageIntegrityAttr.Check(m); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationMismatch, err)
	}
	return nil
}
