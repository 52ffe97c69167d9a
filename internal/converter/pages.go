package converter

import "github.com/pdfcpu/pdfcpu/pkg/api"

// swapped in tests
var pageCountFile = api.PageCountFile
