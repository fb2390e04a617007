package adbus

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Authenticator is one SASL mechanism of the pre-connection handshake.
type Authenticator interface {
	Mechanism() []byte
	InitialResponse() []byte
	ProcessData([]byte) ([]byte, error)
}

// localID is the identity sent in the AUTH line: the decimal effective
// user id.
func localID() []byte {
	return []byte(strconv.Itoa(unix.Geteuid()))
}

// AuthExternal implements the EXTERNAL mechanism, which relies on the
// transport (unix socket credentials) to prove the caller's identity.
type AuthExternal struct {
}

func (p *AuthExternal) Mechanism() []byte {
	return []byte("EXTERNAL")
}

func (p *AuthExternal) InitialResponse() []byte {
	id := localID()
	idHex := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(idHex, id)
	return idHex
}

func (p *AuthExternal) ProcessData([]byte) ([]byte, error) {
	return nil, errors.New("unexpected response")
}

// AuthDbusCookieSha1 implements the DBUS_COOKIE_SHA1 mechanism: the
// server issues a challenge naming a cookie in the user's keyring, and
// the client proves it can read the cookie by hashing it together with
// the challenge and a block of locally generated random data.
type AuthDbusCookieSha1 struct {
	// KeyringDir overrides the cookie location, normally
	// $HOME/.dbus-keyrings.
	KeyringDir string

	// Rand overrides the source of the 32 random bytes.
	Rand io.Reader
}

func (p *AuthDbusCookieSha1) Mechanism() []byte {
	return []byte("DBUS_COOKIE_SHA1")
}

func (p *AuthDbusCookieSha1) InitialResponse() []byte {
	id := localID()
	idHex := make([]byte, hex.EncodedLen(len(id)))
	hex.Encode(idHex, id)
	return idHex
}

func (p *AuthDbusCookieSha1) keyringDir() string {
	if p.KeyringDir != "" {
		return p.KeyringDir
	}
	return os.Getenv("HOME") + "/.dbus-keyrings"
}

// lookupCookie scans the keyring file for the cookie with the given
// id.  Lines have the form "<id> <time> <secret>".
func (p *AuthDbusCookieSha1) lookupCookie(keyring, id []byte) ([]byte, error) {
	file, err := os.Open(p.keyringDir() + "/" + string(keyring))
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		tokens := bytes.SplitN(scanner.Bytes(), []byte(" "), 3)
		if len(tokens) == 3 && bytes.Equal(tokens[0], id) {
			cookie := make([]byte, len(tokens[2]))
			copy(cookie, tokens[2])
			return cookie, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading keyring")
	}
	return nil, errors.Errorf("cookie %s not found in keyring %s", id, keyring)
}

// ProcessData answers the server challenge.  mesg is the hex payload
// of the DATA line, decoding to "<keyring> <cookie-id> <challenge>".
func (p *AuthDbusCookieSha1) ProcessData(mesg []byte) ([]byte, error) {
	decoded := make([]byte, hex.DecodedLen(len(mesg)))
	if _, err := hex.Decode(decoded, mesg); err != nil {
		return nil, errors.Wrap(err, "decoding server data")
	}
	tokens := bytes.SplitN(decoded, []byte(" "), 3)
	if len(tokens) != 3 {
		return nil, errors.New("malformed server data")
	}

	cookie, err := p.lookupCookie(tokens[0], tokens[1])
	if err != nil {
		return nil, err
	}
	serverChallenge := tokens[2]

	random := make([]byte, 32)
	source := p.Rand
	if source == nil {
		source = rand.Reader
	}
	if _, err := io.ReadFull(source, random); err != nil {
		return nil, errors.Wrap(err, "generating challenge")
	}
	localHex := []byte(hex.EncodeToString(random))

	hash := sha1.New()
	hash.Write(serverChallenge)
	hash.Write([]byte(":"))
	hash.Write(localHex)
	hash.Write([]byte(":"))
	hash.Write(cookie)
	digest := []byte(hex.EncodeToString(hash.Sum(nil)))

	resp := bytes.Join([][]byte{localHex, digest}, []byte(" "))
	respHex := make([]byte, hex.EncodedLen(len(resp)))
	hex.Encode(respHex, resp)
	return append([]byte("DATA "), respHex...), nil
}

// Authenticate runs the client side of the SASL text exchange: the
// initial NUL byte, then an AUTH round per mechanism until the server
// accepts one, then BEGIN.  A nil mechanism list tries EXTERNAL
// followed by DBUS_COOKIE_SHA1.
func Authenticate(conn io.ReadWriter, mechs []Authenticator) error {
	if mechs == nil {
		mechs = []Authenticator{&AuthExternal{}, &AuthDbusCookieSha1{}}
	}
	if _, err := conn.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "sending nul byte")
	}
	in := bufio.NewReader(conn)
	for _, mech := range mechs {
		ok, err := tryMechanism(conn, in, mech)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errors.New("no authentication mechanism was accepted")
}

func tryMechanism(conn io.Writer, in *bufio.Reader, mech Authenticator) (bool, error) {
	msg := bytes.Join([][]byte{[]byte("AUTH"), mech.Mechanism(), mech.InitialResponse()}, []byte(" "))
	if _, err := conn.Write(append(msg, "\r\n"...)); err != nil {
		return false, errors.Wrap(err, "sending auth")
	}

	for {
		line, err := readAuthLine(in)
		if err != nil {
			return false, err
		}

		switch {
		case bytes.HasPrefix(line, []byte("DATA ")):
			resp, err := mech.ProcessData(line[len("DATA "):])
			if err != nil {
				conn.Write([]byte("CANCEL\r\n"))
				return false, err
			}
			if _, err := conn.Write(append(resp, "\r\n"...)); err != nil {
				return false, errors.Wrap(err, "sending data")
			}

		case bytes.HasPrefix(line, []byte("OK")),
			bytes.HasPrefix(line, []byte("AGREE_UNIX_FD")):
			if _, err := conn.Write([]byte("BEGIN\r\n")); err != nil {
				return false, errors.Wrap(err, "sending begin")
			}
			return true, nil

		case bytes.HasPrefix(line, []byte("REJECTED")):
			return false, nil

		case bytes.HasPrefix(line, []byte("ERROR")):
			return false, errors.Errorf("authentication error: %s", line)

		default:
			conn.Write([]byte("ERROR\r\n"))
		}
	}
}

// readAuthLine reads one CRLF terminated line.
func readAuthLine(in *bufio.Reader) ([]byte, error) {
	line, err := in.ReadBytes('\n')
	if err != nil {
		return nil, errors.Wrap(err, "reading auth line")
	}
	return bytes.TrimRight(line, "\r\n"), nil
}
