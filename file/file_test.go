package file_test

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/cryptomat"
	"github.com/sentclose/sentc-go/cryptomat/std"
	"github.com/sentclose/sentc-go/file"
	"github.com/sentclose/sentc-go/transport"
)

// fakeFileApi is an in-memory transport.FileApi double: uploaded parts
// are kept in sequence order so Download can walk them exactly as a
// real server-backed store would return them.
type fakeFileApi struct {
	fileId    string
	sessionId string
	parts     []transport.EncryptedFilePart
	bodies    map[string][]byte
	sigs      map[string][]byte
	deleted   bool
}

func newFakeFileApi() *fakeFileApi {
	return &fakeFileApi{fileId: "file-1", sessionId: "session-1", bodies: map[string][]byte{}, sigs: map[string][]byte{}}
}

func (f *fakeFileApi) RegisterFile(ctx context.Context, jwt string, in transport.RegisterFileInput) (string, string, error) {
	return f.fileId, f.sessionId, nil
}

func (f *fakeFileApi) UploadPart(ctx context.Context, jwt, sessionId string, sequence int, isEnd bool, encryptedChunk, signature []byte) error {
	partId := "part-" + strconv.Itoa(sequence)
	f.parts = append(f.parts, transport.EncryptedFilePart{PartId: partId, Sequence: sequence})
	f.bodies[partId] = append([]byte(nil), encryptedChunk...)
	if len(signature) > 0 {
		f.sigs[partId] = append([]byte(nil), signature...)
	}
	return nil
}

func (f *fakeFileApi) FetchFileMeta(ctx context.Context, fileId, jwt string) (transport.FileMetaOutput, error) {
	return transport.FileMetaOutput{FileId: f.fileId, Parts: f.parts}, nil
}

func (f *fakeFileApi) FetchFilePartPage(ctx context.Context, fileId, jwt string, lastSequence int) ([]transport.EncryptedFilePart, error) {
	return nil, nil
}

func (f *fakeFileApi) DownloadPart(ctx context.Context, partId string) ([]byte, []byte, error) {
	return f.bodies[partId], f.sigs[partId], nil
}

func (f *fakeFileApi) DeleteFile(ctx context.Context, fileId, jwt string) error {
	f.deleted = true
	return nil
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	recipientPriv, recipientPub, err := std.GenerateAsymKeyPair("recipient-1")
	require.NoError(t, err)

	contentKey, envelope, err := file.GenerateNonRegisteredKey(cryptomat.AlgXChaCha20Poly, "recipient-1", recipientPub)
	require.NoError(t, err)

	api := newFakeFileApi()
	// repeated enough to exceed file.DefaultChunkSize so the upload
	// exercises the hash-chain derivation across more than one chunk.
	plaintext := bytes.Repeat([]byte("chunked file content "), file.DefaultChunkSize/20)

	fileId, err := file.Upload(context.Background(), file.UploadInput{
		Api:          api,
		Jwt:          "jwt",
		ContentKey:   contentKey,
		EncryptedKey: envelope,
		FileName:     "report.pdf",
		Reader:       bytes.NewReader(plaintext),
		Size:         int64(len(plaintext)),
	})
	require.NoError(t, err)
	require.Equal(t, "file-1", string(fileId))
	require.Greater(t, len(api.parts), 1, "plaintext should span multiple chunks")

	recoveredKey, err := file.GetNonRegisteredKey(recipientPriv, envelope)
	require.NoError(t, err)

	var out bytes.Buffer
	var lastProgress int
	err = file.Download(context.Background(), file.DownloadInput{
		Api:        api,
		Jwt:        "jwt",
		FileId:     fileId,
		ContentKey: recoveredKey,
		Writer:     &out,
		Progress:   func(p int) { lastProgress = p },
	})
	require.NoError(t, err)
	require.Equal(t, plaintext, out.Bytes())
	require.Equal(t, 100, lastProgress)
}

func TestUploadDownloadWithSignatureVerification(t *testing.T) {
	_, recipientPub, err := std.GenerateAsymKeyPair("recipient-2")
	require.NoError(t, err)
	contentKey, envelope, err := file.GenerateNonRegisteredKey(cryptomat.AlgXChaCha20Poly, "recipient-2", recipientPub)
	require.NoError(t, err)

	signKey, verifyKey, err := std.GenerateSignKey("sign-1")
	require.NoError(t, err)

	api := newFakeFileApi()
	plaintext := []byte("short signed file")

	_, err = file.Upload(context.Background(), file.UploadInput{
		Api:          api,
		Jwt:          "jwt",
		ContentKey:   contentKey,
		EncryptedKey: envelope,
		SignKey:      signKey,
		Reader:       bytes.NewReader(plaintext),
		Size:         int64(len(plaintext)),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	err = file.Download(context.Background(), file.DownloadInput{
		Api:        api,
		Jwt:        "jwt",
		FileId:     "file-1",
		ContentKey: contentKey,
		VerifyKey:  verifyKey,
		Writer:     &out,
	})
	require.NoError(t, err)
	require.Equal(t, plaintext, out.Bytes())
}

func TestDownloadWithWrongVerifyKeyFails(t *testing.T) {
	_, recipientPub, err := std.GenerateAsymKeyPair("recipient-5")
	require.NoError(t, err)
	contentKey, envelope, err := file.GenerateNonRegisteredKey(cryptomat.AlgXChaCha20Poly, "recipient-5", recipientPub)
	require.NoError(t, err)

	signKey, _, err := std.GenerateSignKey("sign-1")
	require.NoError(t, err)
	_, wrongVerify, err := std.GenerateSignKey("sign-2")
	require.NoError(t, err)

	api := newFakeFileApi()
	plaintext := []byte("signed by someone else entirely")

	_, err = file.Upload(context.Background(), file.UploadInput{
		Api:          api,
		Jwt:          "jwt",
		ContentKey:   contentKey,
		EncryptedKey: envelope,
		SignKey:      signKey,
		Reader:       bytes.NewReader(plaintext),
		Size:         int64(len(plaintext)),
	})
	require.NoError(t, err)

	err = file.Download(context.Background(), file.DownloadInput{
		Api:        api,
		Jwt:        "jwt",
		FileId:     "file-1",
		ContentKey: contentKey,
		VerifyKey:  wrongVerify,
		Writer:     &bytes.Buffer{},
	})
	require.Error(t, err)
}

func TestDownloadEmptyFileReturnsFilePartNotFound(t *testing.T) {
	api := newFakeFileApi()
	err := file.Download(context.Background(), file.DownloadInput{
		Api:    api,
		Jwt:    "jwt",
		FileId: "file-1",
		Writer: &bytes.Buffer{},
	})
	require.Error(t, err)
}

func TestGetNonRegisteredKeyFailsWithWrongPrivateKey(t *testing.T) {
	_, recipientPub, err := std.GenerateAsymKeyPair("recipient-3")
	require.NoError(t, err)
	_, envelope, err := file.GenerateNonRegisteredKey(cryptomat.AlgXChaCha20Poly, "recipient-3", recipientPub)
	require.NoError(t, err)

	wrongPriv, _, err := std.GenerateAsymKeyPair("recipient-4")
	require.NoError(t, err)

	_, err = file.GetNonRegisteredKey(wrongPriv, envelope)
	require.Error(t, err)
}
