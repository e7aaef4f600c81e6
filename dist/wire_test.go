package dist

import (
	"bufio"
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := []byte("compiler-args-and-preprocessed-text")
	if err := writeFrame(&buf, kindJob, want); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	k, payload, err := readFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if k != kindJob {
		t.Fatalf("got kind %d, want %d", k, kindJob)
	}
	if !bytes.Equal(payload, want) {
		t.Fatalf("got payload %q, want %q", payload, want)
	}
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, kindRequestJob, nil); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	k, payload, err := readFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if k != kindRequestJob || len(payload) != 0 {
		t.Fatalf("got kind=%d payload=%v, want kindRequestJob/empty", k, payload)
	}
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff, byte(kindJob)})
	if _, _, err := readFrame(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected an error for an oversized frame length")
	}
}

func TestMessageRoundTrips(t *testing.T) {
	ack := connectionAck{WorkerID: "worker-1", Capacity: 4}
	gotAck, err := decodeConnectionAck(ack.encode())
	if err != nil || gotAck != ack {
		t.Fatalf("connectionAck round trip: got %+v, %v", gotAck, err)
	}

	status := serverStatus{ActiveJobs: 2, Capacity: 8}
	gotStatus, err := decodeServerStatus(status.encode())
	if err != nil || gotStatus != status {
		t.Fatalf("serverStatus round trip: got %+v, %v", gotStatus, err)
	}

	reqM := requestManifest{ToolchainID: 0xdeadbeef}
	gotReqM, err := decodeRequestManifest(reqM.encode())
	if err != nil || gotReqM != reqM {
		t.Fatalf("requestManifest round trip: got %+v, %v", gotReqM, err)
	}

	man := manifestMsg{ToolchainID: 7, Files: []manifestFile{
		{RelPath: "bin/cc", ContentHash: 123, ModTime: 999, Size: 4096},
		{RelPath: "lib/libc.so", ContentHash: 456, ModTime: 111, Size: 8192},
	}}
	gotMan, err := decodeManifestMsg(man.encode())
	if err != nil {
		t.Fatalf("decodeManifestMsg: %v", err)
	}
	if gotMan.ToolchainID != man.ToolchainID || len(gotMan.Files) != len(man.Files) {
		t.Fatalf("manifestMsg round trip mismatch: got %+v", gotMan)
	}
	for i := range man.Files {
		if gotMan.Files[i] != man.Files[i] {
			t.Fatalf("manifestMsg.Files[%d] = %+v, want %+v", i, gotMan.Files[i], man.Files[i])
		}
	}

	file := fileMsg{ToolchainID: 9, RelPath: "bin/cc", Data: []byte{1, 2, 3, 4}}
	gotFile, err := decodeFileMsg(file.encode())
	if err != nil {
		t.Fatalf("decodeFileMsg: %v", err)
	}
	if gotFile.ToolchainID != file.ToolchainID || gotFile.RelPath != file.RelPath || !bytes.Equal(gotFile.Data, file.Data) {
		t.Fatalf("fileMsg round trip mismatch: got %+v", gotFile)
	}

	job := jobMsg{
		NodeName:     "out/a.o",
		SourceName:   "src/a.c",
		CompilerArgs: []string{"-c", "%1", "-o", "%2"},
		Preprocessed: []byte{0xde, 0xad},
		ToolchainID:  42,
	}
	gotJob, err := decodeJobMsg(job.encode())
	if err != nil {
		t.Fatalf("decodeJobMsg: %v", err)
	}
	if gotJob.NodeName != job.NodeName || gotJob.SourceName != job.SourceName || gotJob.ToolchainID != job.ToolchainID {
		t.Fatalf("jobMsg round trip mismatch: got %+v", gotJob)
	}
	if len(gotJob.CompilerArgs) != len(job.CompilerArgs) {
		t.Fatalf("jobMsg.CompilerArgs round trip mismatch: got %v", gotJob.CompilerArgs)
	}

	res := jobResultMsg{ReturnCode: 1, Stdout: "out", Stderr: "err", ObjectBytes: []byte{9, 9}, Compressed: true}
	gotRes, err := decodeJobResultMsg(res.encode())
	if err != nil {
		t.Fatalf("decodeJobResultMsg: %v", err)
	}
	if gotRes.ReturnCode != res.ReturnCode || gotRes.Stdout != res.Stdout || gotRes.Stderr != res.Stderr || !bytes.Equal(gotRes.ObjectBytes, res.ObjectBytes) || gotRes.Compressed != res.Compressed {
		t.Fatalf("jobResultMsg round trip mismatch: got %+v", gotRes)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	ack := connectionAck{WorkerID: "worker-1", Capacity: 4}
	full := ack.encode()
	if _, err := decodeConnectionAck(full[:len(full)-2]); err == nil {
		t.Fatal("expected an error decoding a truncated payload")
	}
}
