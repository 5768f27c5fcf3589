// Package filters holds the display filters that can be applied to video frames before they
// are shown. Filters never affect what the analyzer sees.
package filters

import (
	"image"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// FrameFilter transforms a frame into a new frame of the same size and format. Apply must not
// modify its input.
type FrameFilter interface {
	Name() string
	Apply(frame *rimage.Frame) (*rimage.Frame, error)
}

// Constructor builds a filter from its attributes.
type Constructor func(attributes utils.AttributeMap) (FrameFilter, error)

// The names of the built-in filters.
const (
	IdentityName = "identity"
	BlurName     = "blur"
	EdgesName    = "edges"
	DenoiseName  = "denoise"
	PixelateName = "pixelate"
	BgSubName    = "bgsub"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

func init() {
	register(IdentityName, func(utils.AttributeMap) (FrameFilter, error) { return identity{}, nil })
	register(BlurName, newBlur)
	register(EdgesName, newEdges)
	register(DenoiseName, newDenoise)
	register(PixelateName, newPixelate)
	register(BgSubName, newBackgroundSubtractor)
}

func register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(errors.Errorf("filter %q registered twice", name))
	}
	registry[name] = constructor
}

// Names returns the sorted names of all registered filters.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// New builds the named filter. An empty name selects the identity filter.
func New(name string, attributes utils.AttributeMap) (FrameFilter, error) {
	if name == "" {
		name = IdentityName
	}
	registryMu.RLock()
	constructor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownNameError("filter", name, Names())
	}
	f, err := constructor(attributes)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s filter", name)
	}
	return f, nil
}

// identity returns an unmodified copy of the frame.
type identity struct{}

func (identity) Name() string { return IdentityName }

func (identity) Apply(frame *rimage.Frame) (*rimage.Frame, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame.Clone(), nil
}

// perPlane runs a Gray8 stage on every channel of frame and reassembles the result.
func perPlane(frame *rimage.Frame, stage func(*rimage.Frame) (*rimage.Frame, error)) (*rimage.Frame, error) {
	planes, err := rimage.SplitChannels(frame)
	if err != nil {
		return nil, err
	}
	for i, p := range planes {
		if planes[i], err = stage(p); err != nil {
			return nil, err
		}
	}
	return rimage.MergeChannels(planes, frame.Format)
}

// fromImage converts an image produced by an image library back into the given format.
func fromImage(img image.Image, format rimage.PixelFormat) (*rimage.Frame, error) {
	rgb := rimage.FrameFromImage(img)
	switch format {
	case rimage.RGB24:
		return rgb, nil
	case rimage.BGR24:
		return rimage.SwapRedBlue(rgb)
	case rimage.Gray8:
		return rimage.ToGray(rgb)
	default:
		return nil, errors.Wrapf(rimage.ErrFormatMismatch, "unsupported format %v", format)
	}
}
