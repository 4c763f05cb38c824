package internal

import (
	"context"

	"github.com/IBM/fp-go/v2/ioeither"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/familizer"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/parse"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

type DownloaderInterface interface {
	FetchDocuments(ctx context.Context, numbers []patent.PatentNumber) ioeither.IOEither[error, []int64]
	FetchFamilies(ctx context.Context, numbers []patent.PatentNumber) ioeither.IOEither[error, []byte]
	ResolveFamilies(ctx context.Context, numbers []patent.PatentNumber) ioeither.IOEither[error, familizer.Result]
}

type ParserInterface interface {
	ParseAll(ctx context.Context, dir, outputJSONL, outputCSV string, maxWorkers int64) (parse.Summary, error)
}
