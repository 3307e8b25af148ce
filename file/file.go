// Package file implements the chunked upload/download codec: a file is
// split into fixed-size chunks, the first sealed under a content key
// delivered out of band, each following chunk sealed under a key
// derived from the previous chunk's plaintext, forming a hash chain
// that only a party holding the previous chunk's plaintext can extend.
package file

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/hkdf"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/ids"
	"github.com/sentclose/sentc-go/sdkerr"
	"github.com/sentclose/sentc-go/transport"
)

const DefaultChunkSize = 4 * 1024 * 1024

// ProgressFunc is called after every chunk with the percentage of the
// transfer completed so far.
type ProgressFunc func(percent int)

// GenerateNonRegisteredKey makes a fresh content key for one file (or
// any ad-hoc encryption that should not join a User/Group keyring),
// seals its raw bytes to recipientPub, and returns both the usable key
// and the server-stored envelope that lets the recipient recover it.
func GenerateNonRegisteredKey(symAlg cryptomat.Algorithm, masterKeyId string, recipientPub cryptomat.AsymPublicKey) (cryptomat.SymKey, transport.GeneratedSymKeyHeadServerOutput, error) {
	key, err := cryptomat.GenerateSymKey(symAlg, "")
	if err != nil {
		return nil, transport.GeneratedSymKeyHeadServerOutput{}, err
	}
	raw, err := rawOf(key)
	if err != nil {
		return nil, transport.GeneratedSymKeyHeadServerOutput{}, err
	}
	enc, err := recipientPub.Encrypt(raw)
	if err != nil {
		return nil, transport.GeneratedSymKeyHeadServerOutput{}, err
	}
	return key, transport.GeneratedSymKeyHeadServerOutput{
		Alg:          string(symAlg),
		MasterKeyId:  masterKeyId,
		EncryptedKey: enc,
	}, nil
}

// GetNonRegisteredKey reverses GenerateNonRegisteredKey: unseal with
// the private key matching the MasterKeyId the envelope names.
func GetNonRegisteredKey(recipientPriv cryptomat.AsymPrivateKey, out transport.GeneratedSymKeyHeadServerOutput) (cryptomat.SymKey, error) {
	raw, err := recipientPriv.Decrypt(out.EncryptedKey)
	if err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return cryptomat.NewSymKey(cryptomat.Algorithm(out.Alg), "", raw)
}

func rawOf(v any) ([]byte, error) {
	re, ok := v.(cryptomat.RawExporter)
	if !ok {
		return nil, sdkerr.Newf(sdkerr.KindSdk, "file: %T does not support raw export", v)
	}
	return re.Raw(), nil
}

// deriveNextKey chains the key for the next chunk from the plaintext
// just encrypted/decrypted, so a peer who has not seen that plaintext
// cannot predict the next key: HKDF-SHA256 with the plaintext as input
// keying material and the current key's raw bytes as salt.
func deriveNextKey(alg cryptomat.Algorithm, current cryptomat.SymKey, plaintext []byte) (cryptomat.SymKey, error) {
	currentRaw, err := rawOf(current)
	if err != nil {
		return nil, err
	}
	kdf := hkdf.New(sha256.New, plaintext, currentRaw, []byte("sentc-file-chunk"))
	next := make([]byte, 32)
	if _, err := io.ReadFull(kdf, next); err != nil {
		return nil, sdkerr.Wrap(err)
	}
	return cryptomat.NewSymKey(alg, "", next)
}

// UploadInput describes one file upload: the already-registered
// content key and its server envelope, optional ownership and name
// encryption, an optional per-chunk signer, and the plaintext source.
type UploadInput struct {
	Api            transport.FileApi
	Jwt            string
	ContentKey     cryptomat.SymKey
	EncryptedKey   transport.GeneratedSymKeyHeadServerOutput
	SignKey        cryptomat.SignKey
	FileName       string
	BelongsToGroup string
	BelongsToUser  string
	Reader         io.Reader
	// Size is the plaintext size in bytes, used only to report
	// Progress as a percentage of total chunks; Upload still streams
	// correctly without it. When Size is zero the transfer counts as a
	// single chunk, so Progress reports 100 after every chunk.
	Size     int64
	Progress ProgressFunc
}

// Upload registers the file, then streams Reader in DefaultChunkSize
// chunks, each sealed under the evolving key chain, reporting progress
// after every chunk.
func Upload(ctx context.Context, in UploadInput) (ids.FileId, error) {
	var encFileName []byte
	if in.FileName != "" {
		_, ct, err := in.ContentKey.EncryptRaw([]byte(in.FileName))
		if err != nil {
			return "", sdkerr.Wrap(err)
		}
		encFileName = ct
	}

	fileId, sessionId, err := in.Api.RegisterFile(ctx, in.Jwt, transport.RegisterFileInput{
		MasterKeyId:       in.EncryptedKey.MasterKeyId,
		EncryptedKey:      in.EncryptedKey.EncryptedKey,
		EncryptedFileName: encFileName,
		BelongsToGroup:    in.BelongsToGroup,
		BelongsToUser:     in.BelongsToUser,
	})
	if err != nil {
		return "", err
	}

	totalChunks := 1
	if in.Size > 0 {
		totalChunks = int((in.Size + DefaultChunkSize - 1) / DefaultChunkSize)
	}

	alg := in.ContentKey.Algorithm()
	currentKey := in.ContentKey
	buf := make([]byte, DefaultChunkSize)
	sequence := 0

	for {
		n, readErr := io.ReadFull(in.Reader, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return "", sdkerr.Newf(sdkerr.KindFileReadError, "%v", readErr)
		}
		isEnd := readErr == io.ErrUnexpectedEOF || readErr == io.EOF
		if n == 0 && isEnd && sequence > 0 {
			break
		}
		chunk := buf[:n]
		sequence++

		var sig []byte
		_, ct, err := currentKey.EncryptRaw(chunk)
		if err != nil {
			return "", sdkerr.Wrap(err)
		}
		if in.SignKey != nil {
			sig, err = in.SignKey.Sign(chunk)
			if err != nil {
				return "", sdkerr.Wrap(err)
			}
		}
		if err := in.Api.UploadPart(ctx, in.Jwt, sessionId, sequence, isEnd, ct, sig); err != nil {
			return "", err
		}

		if !isEnd {
			currentKey, err = deriveNextKey(alg, currentKey, chunk)
			if err != nil {
				return "", err
			}
		}
		if in.Progress != nil {
			in.Progress(min(100, 100*sequence/totalChunks))
		}
		if isEnd {
			break
		}
	}

	return ids.FileId(fileId), nil
}

// DownloadInput describes one file download: the content key recovered
// via GetNonRegisteredKey, an optional verify key for per-chunk
// signatures, and the destination Writer.
type DownloadInput struct {
	Api        transport.FileApi
	Jwt        string
	FileId     ids.FileId
	ContentKey cryptomat.SymKey
	VerifyKey  cryptomat.VerifyKey
	Writer     io.Writer
	Progress   ProgressFunc
}

// Download fetches the file's full (paginated) part list, then walks
// every part in order, decrypting with the evolving key chain and
// verifying each chunk's detached signature when VerifyKey is set.
func Download(ctx context.Context, in DownloadInput) error {
	meta, err := FetchFullFileMeta(ctx, in.Api, string(in.FileId), in.Jwt)
	if err != nil {
		return err
	}
	if len(meta.Parts) == 0 {
		return sdkerr.New(sdkerr.KindFilePartNotFound)
	}

	alg := in.ContentKey.Algorithm()
	currentKey := in.ContentKey
	total := len(meta.Parts)

	for i, part := range meta.Parts {
		raw, sig, err := in.Api.DownloadPart(ctx, part.PartId)
		if err != nil {
			return err
		}
		// the head is reconstructed per chunk: the upload stored the
		// detached signature next to the body, so verification only
		// needs the head populated when the caller asked for it.
		head := cryptomat.EncryptedHead{}
		if len(sig) > 0 && in.VerifyKey != nil {
			head.Sign = &cryptomat.SignHead{
				Id:        in.VerifyKey.KeyId(),
				Alg:       string(in.VerifyKey.Algorithm()),
				Detached:  true,
				Signature: sig,
			}
		}
		plain, err := currentKey.DecryptRaw(head, raw, in.VerifyKey)
		if err != nil {
			return sdkerr.Wrap(err)
		}
		if _, err := in.Writer.Write(plain); err != nil {
			return sdkerr.Newf(sdkerr.KindFileReadError, "%v", err)
		}

		if i != total-1 {
			currentKey, err = deriveNextKey(alg, currentKey, plain)
			if err != nil {
				return err
			}
		}
		if in.Progress != nil {
			in.Progress(100 * (i + 1) / total)
		}
	}

	return nil
}

// FetchFullFileMeta fetches a file's metadata and, when its part list
// is at least transport.FilePartPage long, keeps paginating by last
// sequence until a short page signals the end.
func FetchFullFileMeta(ctx context.Context, api transport.FileApi, fileId, jwt string) (transport.FileMetaOutput, error) {
	meta, err := api.FetchFileMeta(ctx, fileId, jwt)
	if err != nil {
		return transport.FileMetaOutput{}, err
	}
	if len(meta.Parts) < transport.FilePartPage {
		return meta, nil
	}

	for {
		last := meta.Parts[len(meta.Parts)-1]
		more, err := api.FetchFilePartPage(ctx, fileId, jwt, last.Sequence)
		if err != nil {
			return transport.FileMetaOutput{}, err
		}
		meta.Parts = append(meta.Parts, more...)
		if len(more) < transport.FilePartPage {
			return meta, nil
		}
	}
}

// DisambiguateFileName appends 1, 2, … before name's extension until
// no file at dir/name exists.
func DisambiguateFileName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]

	candidate := name
	for i := 1; ; i++ {
		_, err := os.Stat(filepath.Join(dir, candidate))
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", sdkerr.Newf(sdkerr.KindFileReadError, "%v", err)
		}
		candidate = stem + strconv.Itoa(i) + ext
	}
}
