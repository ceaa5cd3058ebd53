package tools

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality    = 90
	maxImageEdgePx = 16384
	// maxImagePixels bounds both the decoded source and the scaled output.
	maxImagePixels = 64 << 20
)

// ImageFormat is the encoding used for the output image.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatGIF  ImageFormat = "gif"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
)

// ResolveImageFormat picks the output encoding from the file extension.
func ResolveImageFormat(path string) (ImageFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".gif":
		return FormatGIF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case "":
		return "", fmt.Errorf("output_path has no extension; cannot choose an image format")
	default:
		return "", fmt.Errorf("unsupported output image format %q", ext)
	}
}

func encodeImage(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// targetSize returns the output size. A missing dimension is derived from the
// other one so the aspect ratio is kept; with neither, the size is unchanged.
// A derived edge may not exceed maxImageEdgePx and the output may not exceed
// maxImagePixels.
func targetSize(src image.Rectangle, width, height int) (int, int, error) {
	sw, sh := src.Dx(), src.Dy()
	var w, h int
	switch {
	case width > 0 && height > 0:
		w, h = width, height
	case width > 0:
		w, h = width, max((sh*width+sw/2)/sw, 1)
	case height > 0:
		w, h = max((sw*height+sh/2)/sh, 1), height
	default:
		return sw, sh, nil
	}
	if w > maxImageEdgePx || h > maxImageEdgePx {
		return 0, 0, fmt.Errorf("target size %dx%d exceeds the %d pixel edge limit", w, h, maxImageEdgePx)
	}
	if int64(w)*int64(h) > maxImagePixels {
		return 0, 0, fmt.Errorf("target size %dx%d exceeds the %d pixel limit", w, h, maxImagePixels)
	}
	return w, h, nil
}

// checkImageHeader reads only the header so oversized images are refused
// before their pixels are allocated.
func checkImageHeader(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return fmt.Errorf("image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, maxImagePixels)
	}
	return nil
}

// ImageResult is the payload of resize-image.
type ImageResult struct {
	Path   string      `json:"path"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Format ImageFormat `json:"format"`
}

type imageImpl struct{}

// NewResizeImage decodes an image, optionally scales it and writes it in the
// format named by the output extension.
func NewResizeImage() *dispatch.Spec {
	impl := &imageImpl{}
	return &dispatch.Spec{
		Name: ResizeImage,
		Desc: "Resize an image (png, jpeg, gif, bmp, tiff, webp) and save it as png, jpeg, gif, bmp or tiff",
		Params: map[string]*schema.ParameterInfo{
			"image_path":  requiredString("Source image file"),
			"output_path": requiredString("Destination image file; its extension selects the format"),
			"width":       {Type: schema.Integer, Desc: "Target width in pixels"},
			"height":      {Type: schema.Integer, Desc: "Target height in pixels"},
		},
		Paths: []dispatch.PathParam{
			{Param: "image_path", Intent: policy.IntentRead},
			{Param: "output_path", Intent: policy.IntentWriteNew},
		},
		Validate: func(p dispatch.Params) error {
			for _, name := range []string{"width", "height"} {
				if !p.Has(name) {
					continue
				}
				v, _ := p.Int(name)
				if v <= 0 || v > maxImageEdgePx {
					return fmt.Errorf("%s must be between 1 and %d", name, maxImageEdgePx)
				}
			}
			_, err := ResolveImageFormat(p.String("output_path"))
			return err
		},
		Perform: impl.perform,
	}
}

func (imageImpl) perform(ctx context.Context, call *dispatch.Call) (any, error) {
	out := call.Path("output_path")
	format, err := ResolveImageFormat(out)
	if err != nil {
		return nil, dispatch.Failf(err, "resolve format")
	}

	data, err := readFile("read image", call.Path("image_path"))
	if err != nil {
		return nil, err
	}
	if err := checkImageHeader(data); err != nil {
		return nil, dispatch.Failf(err, "decode image")
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, dispatch.Failf(err, "decode image")
	}
	if src.Bounds().Empty() {
		return nil, dispatch.Failf(nil, "decode image: image has no pixels")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, _ := call.Params.Int("width")
	height, _ := call.Params.Int("height")
	w, h, err := targetSize(src.Bounds(), width, height)
	if err != nil {
		param := "width"
		if width <= 0 {
			param = "height"
		}
		return nil, dispatch.Invalidf(param, "%v", err)
	}

	img := src
	if w != src.Bounds().Dx() || h != src.Bounds().Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := encodeImage(&buf, img, format); err != nil {
		return nil, dispatch.Failf(err, "encode %s", format)
	}
	if err := writeNew(out, buf.Bytes()); err != nil {
		return nil, err
	}
	return &ImageResult{Path: out, Width: w, Height: h, Format: format}, nil
}
