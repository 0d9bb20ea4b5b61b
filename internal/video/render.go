package video

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"trafficmon/internal/model"
)

var (
	background = color.RGBA{30, 30, 50, 255}
	headerGray = color.RGBA{100, 100, 100, 255}
	textWhite  = color.RGBA{255, 255, 255, 255}
	textDim    = color.RGBA{150, 150, 150, 255}

	classColors = []color.RGBA{
		{80, 200, 120, 255},
		{230, 180, 60, 255},
		{220, 90, 90, 255},
	}
)

// frames per loop of the synthetic clip; the animation wraps back to
// its first frame here, mirroring a replayed source video.
const loopFrames = 300

// renderFrame draws one synthetic annotated frame: a header bar, one
// moving labeled box per vehicle class, and the live counts.
func renderFrame(w, h int, seq uint64, snap model.Snapshot) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	outlineRect(img, image.Rect(20, 20, w-20, 60), headerGray)
	drawString(img, 30, 45, "Traffic Monitoring System", textWhite)

	phase := int(seq % loopFrames)
	classes := model.VehicleClasses()
	boxW, boxH := 70, 40
	for i, class := range classes {
		x := (phase*3 + i*180) % (w + boxW)
		y := 100 + i*((h-180)/len(classes))
		box := image.Rect(x-boxW, y, x, y+boxH)
		outlineRect(img, box.Intersect(img.Bounds()), classColors[i%len(classColors)])
		drawString(img, x-boxW, y-4, string(class), classColors[i%len(classColors)])
	}

	y := h - 40
	for _, class := range classes {
		line := fmt.Sprintf("%s in:%d out:%d rate:%.1f/min",
			class, snap.In[class], snap.Out[class], snap.Rates[class])
		drawString(img, 30, y, line, textDim)
		y += 13
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Placeholder renders the "no frame yet" card served before the
// producer has written anything.
func Placeholder(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	outlineRect(img, image.Rect(20, 20, w-20, 60), headerGray)
	drawString(img, 30, 45, "Traffic Monitoring System", textWhite)
	drawString(img, w/2-60, h/2, "No video source", textWhite)
	drawString(img, w/2-90, h/2+20, "Start monitoring to begin streaming", textDim)

	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}

func outlineRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}

func drawString(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
