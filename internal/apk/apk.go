// Package apk inspects an Android package's manifest.
//
// MakeDebuggable walks a linear state machine:
//
//	Start -> ManifestLocated -> ManifestRead -> Decoded -> TargetFound | TargetMissing
//
// Every failure along the way is returned as an apkerr coded error and the
// package file is never modified.
package apk

import (
	"log/slog"

	"github.com/mcdonaldj/apkpatch/internal/adapters/axmldecoder"
	"github.com/mcdonaldj/apkpatch/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/binxml"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

const (
	// ManifestName is the member holding the compiled manifest.
	ManifestName = "AndroidManifest.xml"
	// ApplicationTag is the declaration the orchestrator looks for.
	ApplicationTag = "application"
	// AndroidNS is the namespace URI of android: attributes.
	AndroidNS = "http://schemas.android.com/apk/res/android"
)

// State is a step of the manifest state machine.
type State int

const (
	StateStart State = iota
	StateManifestLocated
	StateManifestRead
	StateDecoded
	StateTargetFound
	StateTargetMissing
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateManifestLocated:
		return "MANIFEST_LOCATED"
	case StateManifestRead:
		return "MANIFEST_READ"
	case StateDecoded:
		return "DECODED"
	case StateTargetFound:
		return "TARGET_FOUND"
	case StateTargetMissing:
		return "TARGET_MISSING"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateTargetFound || s == StateTargetMissing
}

// Result is the outcome of a successful run.
type Result struct {
	State State
	// Debuggable is true when the application start tag already carries
	// android:debuggable="true".
	Debuggable bool
}

// Package is one APK on disk plus the collaborators used to inspect it.
type Package struct {
	path         string
	archiver     ports.Archiver
	decoder      ports.ManifestDecoder
	logger       *slog.Logger
	manifestName string
}

// Option configures a Package.
type Option func(*Package)

// WithManifestName overrides the manifest member name.
func WithManifestName(name string) Option {
	return func(p *Package) {
		if name != "" {
			p.manifestName = name
		}
	}
}

// NewPackage creates a Package with the given dependencies.
func NewPackage(path string, archiver ports.Archiver, decoder ports.ManifestDecoder, logger *slog.Logger, opts ...Option) *Package {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Package{
		path:         path,
		archiver:     archiver,
		decoder:      decoder,
		logger:       logger,
		manifestName: ManifestName,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefaultPackage creates a Package backed by the zip archiver and the
// compiled XML decoder.
func NewDefaultPackage(path string, logger *slog.Logger, opts ...Option) *Package {
	return NewPackage(path,
		ziparchiver.New(ziparchiver.WithLogger(logger)),
		axmldecoder.New(logger),
		logger, opts...)
}

// Path returns the package file path.
func (p *Package) Path() string {
	return p.path
}

// MakeDebuggable locates and decodes the manifest and reports whether it
// declares an application. Detection only: nothing is written back.
func (p *Package) MakeDebuggable() (Result, error) {
	doc, err := p.decodeManifest()
	if err != nil {
		return Result{}, err
	}

	var sawStart, sawEnd, debuggable bool
	err = binxml.Traverse(doc.Elements(), binxml.Visitor{
		OnStart: func(st binxml.StartTag) error {
			if st.Name == ApplicationTag {
				sawStart = true
				debuggable = debuggable || isTrue(st)
			}
			return nil
		},
		OnEnd: func(et binxml.EndTag) error {
			if et.Name == ApplicationTag {
				sawEnd = true
			}
			return nil
		},
		OnInvalid: func(inv binxml.Invalid) error {
			return p.fail("manifest malformed", apkerr.Wrap(inv.Err, apkerr.CodeMalformedManifest, "invalid element in manifest"))
		},
	})
	if err != nil {
		return Result{}, err
	}

	state := StateTargetMissing
	if sawStart && sawEnd {
		state = StateTargetFound
	}
	p.transition(state)
	return Result{State: state, Debuggable: debuggable}, nil
}

// IsDebuggable reports the android:debuggable flag of the application
// declaration. A manifest without the attribute is not debuggable.
func (p *Package) IsDebuggable() (bool, error) {
	doc, err := p.decodeManifest()
	if err != nil {
		return false, err
	}

	for el := range doc.Elements() {
		switch el := el.(type) {
		case binxml.StartTag:
			if el.Name == ApplicationTag {
				return isTrue(el), nil
			}
		case binxml.Invalid:
			return false, p.fail("manifest malformed", apkerr.Wrap(el.Err, apkerr.CodeMalformedManifest, "invalid element in manifest"))
		}
	}
	return false, nil
}

// Outline renders the decoded manifest as indented text.
func (p *Package) Outline() (string, error) {
	doc, err := p.decodeManifest()
	if err != nil {
		return "", err
	}
	return binxml.Outline(doc.Elements()), nil
}

// decodeManifest runs Start through Decoded.
func (p *Package) decodeManifest() (binxml.Document, error) {
	p.transition(StateStart)

	entry, ok := ports.Find(p.archiver.List(p.path), p.manifestName)
	if !ok {
		return nil, p.fail("manifest missing", apkerr.Newf(apkerr.CodeMissingManifest, "%s not found in package", p.manifestName))
	}
	p.transition(StateManifestLocated)

	data, err := p.archiver.ReadMember(p.path, entry)
	if err != nil {
		p.logger.Warn("reading manifest failed", "package", p.path, "error", err)
		return nil, err
	}
	if len(data) == 0 {
		return nil, p.fail("manifest missing", apkerr.Newf(apkerr.CodeMissingManifest, "%s is empty", p.manifestName))
	}
	p.transition(StateManifestRead)

	doc, err := p.decoder.Decode(data)
	if err != nil {
		return nil, p.fail("manifest malformed", apkerr.Wrap(err, apkerr.CodeMalformedManifest, "decoding manifest"))
	}
	if !binxml.HasElement(doc.Elements(), ApplicationTag) {
		return nil, p.fail("manifest malformed", apkerr.Newf(apkerr.CodeMalformedManifest, "manifest has no <%s> declaration", ApplicationTag))
	}
	p.transition(StateDecoded)

	return doc, nil
}

func (p *Package) transition(s State) {
	p.logger.Debug("manifest state", "package", p.path, "state", s.String())
}

// fail logs err and attaches the package and manifest names.
func (p *Package) fail(msg string, err error) error {
	p.logger.Warn(msg, "package", p.path, "error", err)
	return apkerr.With(apkerr.With(err, "container", p.path), "member", p.manifestName)
}

// isTrue reads android:debuggable. Decoders that keep the prefix instead of
// resolving it to the namespace URI are accepted too.
func isTrue(st binxml.StartTag) bool {
	v, ok := st.Attr(AndroidNS, "debuggable")
	if !ok {
		v, ok = st.Attr("android", "debuggable")
	}
	return ok && v == "true"
}
