package nodes

import (
	"path/filepath"

	"github.com/forgebuild/forge/fingerprint"
	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/platform"
	"golang.org/x/xerrors"
)

// ObjectCompileConfig carries the per-ObjectNode settings an ObjectListNode
// stamps onto every compile unit it discovers dynamically from a
// DirectoryListNode or UnityNode, mirroring the literal ObjectNode
// construction the DSL builder does for an explicit CompilerInputFiles list.
type ObjectCompileConfig struct {
	Compiler      graph.NodeIndex // a CompilerNode, or graph.InvalidIndex
	CompilerExe   string
	Args          []string
	OutputExt     string
	Distributable bool
	Cacheable     bool
	Cache         Cache
	LightCache    LightCache
	Distributor   Distributor
	Cap           platform.Capability
}

// ObjectListNode is a bag of ObjectNodes over directory lists or unity
// nodes, per the data model. Its stamp aggregates its children's so a
// downstream LibraryNode/DLLNode/ExeNode sees one dependency instead of N.
//
// DirPath/Unity name at most one dynamic source (CompilerInputPath /
// CompilerInputUnity in the DSL): GatherDynamicDeps expands it into one
// ObjectNode per discovered file, mirroring the original's
// CreateDynamicObjectNode, which waits for the directory scan or unity
// amalgamation to finish before it knows what there is to compile. Objects
// supplied directly (CompilerInputFiles) are just appended up front and
// never touched here.
type ObjectListNode struct {
	Objects []graph.NodeIndex

	DirPath graph.NodeIndex // a DirectoryListNode, or graph.InvalidIndex
	Unity   graph.NodeIndex // a UnityNode, or graph.InvalidIndex
	Config  ObjectCompileConfig
}

func init() {
	graph.KindRegistry["ObjectListNode"] = func() graph.Kind {
		return &ObjectListNode{DirPath: graph.InvalidIndex, Unity: graph.InvalidIndex}
	}
}

func (l *ObjectListNode) KindName() string { return "ObjectListNode" }
func (l *ObjectListNode) IsFile() bool     { return false }

func (l *ObjectListNode) DetermineNeedToBuild(n *graph.Node, g *graph.Graph) bool {
	return true
}

func (l *ObjectListNode) GatherDynamicDeps(n *graph.Node, g *graph.Graph) error {
	switch {
	case l.DirPath != graph.InvalidIndex:
		src := g.Node(l.DirPath)
		dl, ok := src.Kind.(*DirectoryListNode)
		if !ok {
			return xerrors.Errorf("ObjectListNode: CompilerInputPath %q is not a DirectoryListNode", src.Name)
		}
		for _, fi := range dl.Files {
			if fi.IsDir {
				continue
			}
			if err := l.addObject(n, g, filepath.Join(dl.Path, fi.Name)); err != nil {
				return err
			}
		}
	case l.Unity != graph.InvalidIndex:
		src := g.Node(l.Unity)
		u, ok := src.Kind.(*UnityNode)
		if !ok {
			return xerrors.Errorf("ObjectListNode: CompilerInputUnity %q is not a UnityNode", src.Name)
		}
		for _, path := range u.Amalgamations {
			if err := l.addObject(n, g, path); err != nil {
				return err
			}
		}
		for _, path := range u.Isolated {
			if err := l.addObject(n, g, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// addObject registers one FileNode/ObjectNode pair for path, the way
// config/functions.go's buildObjectList does for an explicit
// CompilerInputFiles entry, and wires the new ObjectNode as a dynamic
// dependency of n so the scheduler builds it before n aggregates its stamp.
func (l *ObjectListNode) addObject(n *graph.Node, g *graph.Graph, path string) error {
	fileNode, ok := g.FindNode(path)
	if !ok {
		var err error
		fileNode, err = g.Register(path, &FileNode{Cap: l.Config.Cap})
		if err != nil {
			return err
		}
	}

	outputPath := path + l.Config.OutputExt
	objNode, err := g.Register(outputPath, &ObjectNode{
		Input:         fileNode.Index,
		InputPath:     path,
		Compiler:      l.Config.Compiler,
		CompilerExe:   l.Config.CompilerExe,
		Args:          l.Config.Args,
		OutputPath:    outputPath,
		Distributable: l.Config.Distributable,
		Cacheable:     l.Config.Cacheable,
		Cache:         l.Config.Cache,
		LightCache:    l.Config.LightCache,
		Distributor:   l.Config.Distributor,
		Cap:           l.Config.Cap,
	})
	if err != nil {
		return err
	}
	if l.Config.Compiler != graph.InvalidIndex {
		objNode.AddStatic(l.Config.Compiler)
	}
	objNode.AddStatic(fileNode.Index)

	l.Objects = append(l.Objects, objNode.Index)
	n.AddDynamic(objNode.Index)
	return nil
}

func (l *ObjectListNode) DoBuild(n *graph.Node, g *graph.Graph) graph.Result {
	h := fingerprint.NewHash64Stream()
	for _, idx := range l.Objects {
		h.WriteUint64(g.Node(idx).Stamp)
	}
	n.Stamp = h.Sum()
	return graph.Result{Outcome: graph.Ok}
}

func (l *ObjectListNode) Save(n *graph.Node, w *graph.Writer) error {
	writeIndexSliceHelper(w, l.Objects)
	w.Int32(int32(l.DirPath))
	w.Int32(int32(l.Unity))
	w.Int32(int32(l.Config.Compiler))
	w.String(l.Config.CompilerExe)
	writeStrings(w, l.Config.Args)
	w.String(l.Config.OutputExt)
	w.Bool(l.Config.Distributable)
	w.Bool(l.Config.Cacheable)
	return nil
}

func (l *ObjectListNode) Load(n *graph.Node, r *graph.Reader) error {
	l.Objects = readIndexSliceHelper(r)
	l.DirPath = graph.NodeIndex(r.Int32())
	l.Unity = graph.NodeIndex(r.Int32())
	l.Config.Compiler = graph.NodeIndex(r.Int32())
	l.Config.CompilerExe = r.String()
	l.Config.Args = readStrings(r)
	l.Config.OutputExt = r.String()
	l.Config.Distributable = r.Bool()
	l.Config.Cacheable = r.Bool()
	l.Config.Cap = platform.Default
	return nil
}

func writeIndexSliceHelper(w *graph.Writer, s []graph.NodeIndex) {
	w.Uint32(uint32(len(s)))
	for _, idx := range s {
		w.Int32(int32(idx))
	}
}

func readIndexSliceHelper(r *graph.Reader) []graph.NodeIndex {
	n := r.Uint32()
	if n == 0 {
		return nil
	}
	out := make([]graph.NodeIndex, n)
	for i := range out {
		out[i] = graph.NodeIndex(r.Int32())
	}
	return out
}
