package mapi

// ChallengeBlob is the fixed challenge sent immediately after a connection
// is ready for exchange.
const ChallengeBlob = "s7NzFDHo0UdlE:merovingian:9:RIPEMD160,SHA512,SHA384,SHA256,SHA224,SHA1:LIT:SHA512:"

// ErrorBlob is the fixed error reply sent after the client's request is
// read.
const ErrorBlob = "!Sorry, this is not a real MonetDB instance"

// Exchange drives the fixed challenge/request/error sequence over an
// already-handshaken (or plaintext) connection: send the challenge,
// read one logical request message, send the error reply. The caller is
// responsible for closing the connection afterward.
//
// conn is any reader/writer pair — typically a net.Conn or a *tls.Conn
// after a successful handshake.
func Exchange(conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}) error {
	if err := WriteMessage(conn, []byte(ChallengeBlob)); err != nil {
		return err
	}
	if _, err := ReadMessage(conn); err != nil {
		return err
	}
	return WriteMessage(conn, []byte(ErrorBlob))
}
