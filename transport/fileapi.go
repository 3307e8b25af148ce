package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/sentclose/sentc-go/sdkerr"
)

// FilePartPage is the pagination threshold for a file's part list: a
// page shorter than this marks the end.
const FilePartPage = 500

// FileApi is the seam between the File Chunked Stream Codec and the
// network: registering a file's metadata, uploading/downloading
// individual chunks, and paginating a long part list.
type FileApi interface {
	RegisterFile(ctx context.Context, jwt string, in RegisterFileInput) (fileId, sessionId string, err error)
	UploadPart(ctx context.Context, jwt, sessionId string, sequence int, isEnd bool, encryptedChunk, signature []byte) error
	FetchFileMeta(ctx context.Context, fileId, jwt string) (FileMetaOutput, error)
	FetchFilePartPage(ctx context.Context, fileId, jwt string, lastSequence int) ([]EncryptedFilePart, error)
	// DownloadPart returns the chunk body plus the detached signature
	// UploadPart stored alongside it, nil when the chunk was uploaded
	// unsigned.
	DownloadPart(ctx context.Context, partId string) (data, signature []byte, err error)
	DeleteFile(ctx context.Context, fileId, jwt string) error
}

// RegisterFileInput is everything register_file uploads before the
// first chunk: the content key sealed to the recipient, ownership, and
// an optional encrypted file name.
type RegisterFileInput struct {
	MasterKeyId       string `json:"master_key_id"`
	EncryptedKey      []byte `json:"encrypted_key"`
	EncryptedFileName []byte `json:"encrypted_file_name,omitempty"`
	BelongsToGroup    string `json:"belongs_to_group,omitempty"`
	BelongsToUser     string `json:"belongs_to_user,omitempty"`
}

// HttpFileApi is the default FileApi: plain JSON-over-HTTP for metadata,
// raw bytes for chunk bodies, through a caller-supplied Doer, optionally
// against a distinct file-part URL (Config.FilePartURL) when the
// deployment fronts chunk storage separately from the main API.
type HttpFileApi struct {
	Doer        Doer
	BaseUrl     string
	FilePartUrl string
	AppToken    string
}

func NewHttpFileApi(doer Doer, baseUrl, filePartUrl, appToken string) *HttpFileApi {
	if filePartUrl == "" {
		filePartUrl = baseUrl
	}
	return &HttpFileApi{Doer: doer, BaseUrl: baseUrl, FilePartUrl: filePartUrl, AppToken: appToken}
}

func (c *HttpFileApi) groupDo(ctx context.Context, method, path, jwt string, body, out any) error {
	api := &HttpGroupApi{Doer: c.Doer, BaseUrl: c.BaseUrl, AppToken: c.AppToken}
	return api.do(ctx, method, path, jwt, body, out)
}

func (c *HttpFileApi) RegisterFile(ctx context.Context, jwt string, in RegisterFileInput) (string, string, error) {
	var out struct {
		FileId    string `json:"file_id"`
		SessionId string `json:"session_id"`
	}
	err := c.groupDo(ctx, http.MethodPost, "/file", jwt, in, &out)
	return out.FileId, out.SessionId, err
}

func (c *HttpFileApi) UploadPart(ctx context.Context, jwt, sessionId string, sequence int, isEnd bool, encryptedChunk, signature []byte) error {
	path := fmt.Sprintf("/file/part/%s/%d/%t", sessionId, sequence, isEnd)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.FilePartUrl+path, bytes.NewReader(encryptedChunk))
	if err != nil {
		return sdkerr.Wrap(err)
	}
	req.Header.Set("x-sentc-app-token", c.AppToken)
	req.Header.Set("Authorization", "Bearer "+jwt)
	if len(signature) > 0 {
		req.Header.Set("x-sentc-signature", hex.EncodeToString(signature))
	}
	resp, err := c.Doer.Do(req)
	if err != nil {
		return sdkerr.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return sdkerr.Newf(sdkerr.KindSdk, "upload_part server error %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

func (c *HttpFileApi) FetchFileMeta(ctx context.Context, fileId, jwt string) (FileMetaOutput, error) {
	var out FileMetaOutput
	err := c.groupDo(ctx, http.MethodGet, "/file/"+fileId, jwt, nil, &out)
	return out, err
}

func (c *HttpFileApi) FetchFilePartPage(ctx context.Context, fileId, jwt string, lastSequence int) ([]EncryptedFilePart, error) {
	var out []EncryptedFilePart
	path := fmt.Sprintf("/file/%s/parts/%d", fileId, lastSequence)
	err := c.groupDo(ctx, http.MethodGet, path, jwt, nil, &out)
	return out, err
}

func (c *HttpFileApi) DownloadPart(ctx context.Context, partId string) ([]byte, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FilePartUrl+"/file/part/"+partId, nil)
	if err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	req.Header.Set("x-sentc-app-token", c.AppToken)
	resp, err := c.Doer.Do(req)
	if err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, sdkerr.Wrap(err)
	}
	if resp.StatusCode >= 400 {
		return nil, nil, sdkerr.Newf(sdkerr.KindSdk, "download_part server error %d: %s", resp.StatusCode, string(raw))
	}

	var sig []byte
	if h := resp.Header.Get("x-sentc-signature"); h != "" {
		sig, err = hex.DecodeString(h)
		if err != nil {
			return nil, nil, sdkerr.Newf(sdkerr.KindSdk, "download_part malformed signature header: %v", err)
		}
	}
	return raw, sig, nil
}

func (c *HttpFileApi) DeleteFile(ctx context.Context, fileId, jwt string) error {
	return c.groupDo(ctx, http.MethodDelete, "/file/"+fileId, jwt, nil, nil)
}
