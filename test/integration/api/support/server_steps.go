package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

type scanResponse struct {
	Result []struct {
		BarcodeData string `json:"barcode_data"`
		BarcodeLink string `json:"barcode_link"`
	} `json:"result"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (testCtx *TestContext) theBarcodeServiceIsRunningWithFormats(formats string) error {
	return testCtx.StartServer(strings.Split(formats, ","))
}

func (testCtx *TestContext) theMaxUploadSizeIsMB(mb int) error {
	testCtx.MaxUploadMB = int64(mb)
	return nil
}

func (testCtx *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing response body: %v\n", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = resp.Header
	return nil
}

func (testCtx *TestContext) iUploadTheImageAsField(field string) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, testCtx.ImageName)
	if err != nil {
		return err
	}
	if _, err := part.Write(testCtx.ImageData); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.URL("/vindata"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iUploadTheImage() error {
	return testCtx.iUploadTheImageAsField("image")
}

func (testCtx *TestContext) iSendARequestTo(method, path string) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}
	req, err := http.NewRequest(method, testCtx.URL(path), nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) parseScanResponse() (*scanResponse, error) {
	var resp scanResponse
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &resp); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w: %s", err, testCtx.LastHTTPResponse)
	}
	return &resp, nil
}

func (testCtx *TestContext) theResponseShouldContainBarcodes(n int) error {
	resp, err := testCtx.parseScanResponse()
	if err != nil {
		return err
	}
	if len(resp.Result) != n {
		return fmt.Errorf("expected %d barcodes, got %d", n, len(resp.Result))
	}
	return nil
}

func (testCtx *TestContext) barcodeShouldHaveData(index int, data string) error {
	resp, err := testCtx.parseScanResponse()
	if err != nil {
		return err
	}
	if index < 1 || index > len(resp.Result) {
		return fmt.Errorf("barcode %d not in response (%d results)", index, len(resp.Result))
	}
	if got := resp.Result[index-1].BarcodeData; got != data {
		return fmt.Errorf("barcode %d: expected data %q, got %q", index, data, got)
	}
	return nil
}

func (testCtx *TestContext) someBarcodeShouldHaveData(data string) error {
	resp, err := testCtx.parseScanResponse()
	if err != nil {
		return err
	}
	for _, r := range resp.Result {
		if r.BarcodeData == data {
			return nil
		}
	}
	return fmt.Errorf("no barcode with data %q in %d results", data, len(resp.Result))
}

func (testCtx *TestContext) everyBarcodeLinkShouldServeAJPEGImage() error {
	resp, err := testCtx.parseScanResponse()
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	for i, r := range resp.Result {
		if !strings.HasPrefix(r.BarcodeLink, "/uploads/barcodes/") {
			return fmt.Errorf("barcode %d: unexpected link %q", i+1, r.BarcodeLink)
		}
		if err := fetchJPEG(client, testCtx.URL(r.BarcodeLink)); err != nil {
			return fmt.Errorf("barcode %d: %w", i+1, err)
		}
	}
	return nil
}

func fetchJPEG(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		return fmt.Errorf("GET %s returned content type %q", url, ct)
	}
	if _, err := jpeg.Decode(resp.Body); err != nil {
		return fmt.Errorf("GET %s did not return a JPEG: %w", url, err)
	}
	return nil
}

func (testCtx *TestContext) theResponseMessageShouldBe(msg string) error {
	resp, err := testCtx.parseScanResponse()
	if err != nil {
		return err
	}
	if resp.Message != msg {
		return fmt.Errorf("expected message %q, got %q", msg, resp.Message)
	}
	return nil
}

func (testCtx *TestContext) theResponseErrorShouldBe(msg string) error {
	resp, err := testCtx.parseScanResponse()
	if err != nil {
		return err
	}
	if resp.Error != msg {
		return fmt.Errorf("expected error %q, got %q", msg, resp.Error)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldBeJSONWithField(field, value string) error {
	var body map[string]interface{}
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &body); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if got := fmt.Sprint(body[field]); got != value {
		return fmt.Errorf("expected %s=%q, got %q", field, value, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != value {
		return fmt.Errorf("expected header %s=%q, got %q", name, value, got)
	}
	return nil
}

func (testCtx *TestContext) theUploadDirectoryShouldContainFiles(n int) error {
	entries, err := os.ReadDir(testCtx.UploadDir)
	if err != nil {
		return err
	}
	count := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".jpg") && !strings.HasPrefix(e.Name(), ".") {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d files in upload directory, found %d", n, count)
	}
	return nil
}

// RegisterServerSteps registers the HTTP steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the max upload size is (\d+) MB$`, testCtx.theMaxUploadSizeIsMB)
	sc.Step(`^the barcode service is running with formats "([^"]*)"$`, testCtx.theBarcodeServiceIsRunningWithFormats)
	sc.Step(`^I upload the image$`, testCtx.iUploadTheImage)
	sc.Step(`^I upload the image as field "([^"]*)"$`, testCtx.iUploadTheImageAsField)
	sc.Step(`^I send a (GET|POST|PUT|DELETE|OPTIONS) request to "([^"]*)"$`, testCtx.iSendARequestTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain (\d+) barcodes?$`, testCtx.theResponseShouldContainBarcodes)
	sc.Step(`^barcode (\d+) should have data "([^"]*)"$`, testCtx.barcodeShouldHaveData)
	sc.Step(`^some barcode should have data "([^"]*)"$`, testCtx.someBarcodeShouldHaveData)
	sc.Step(`^every barcode link should serve a JPEG image$`, testCtx.everyBarcodeLinkShouldServeAJPEGImage)
	sc.Step(`^the response message should be "([^"]*)"$`, testCtx.theResponseMessageShouldBe)
	sc.Step(`^the response error should be "([^"]*)"$`, testCtx.theResponseErrorShouldBe)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseShouldBeJSONWithField)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the upload directory should contain (\d+) files?$`, testCtx.theUploadDirectoryShouldContainFiles)
}
