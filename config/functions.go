package config

import (
	"fmt"

	"github.com/forgebuild/forge/graph"
	"github.com/forgebuild/forge/graph/nodes"
	"github.com/forgebuild/forge/platform"
)

// Context carries everything a Builder needs beyond the call site's
// already-evaluated scope: the target graph and the shared caches/
// distributor that ObjectNode instances are wired to, per spec.md §4.3's
// "consult the cache, distribute or compile locally on miss" flow.
type Context struct {
	Graph       *graph.Graph
	Cache       nodes.Cache
	LightCache  nodes.LightCache
	Distributor nodes.Distributor
}

// RegisterBuilders binds the DSL's node-kind functions (Library, DLL,
// ObjectList, Copy, CopyDir, Exec, Unity, Alias, Compiler, Test,
// VCXProject, VSSolution, Settings, TextFile, ListDependencies, Executable)
// to ev, closing over ctx's *graph.Graph and cache/distribution seams.
func RegisterBuilders(ev *Evaluator, ctx *Context) {
	ev.Register("Compiler", ctx.buildCompiler)
	ev.Register("ObjectList", ctx.buildObjectList)
	ev.Register("Library", ctx.buildLink(func() graph.Kind { return &nodes.LibraryNode{} }))
	ev.Register("DLL", ctx.buildLink(func() graph.Kind { return &nodes.DLLNode{} }))
	ev.Register("Executable", ctx.buildLink(func() graph.Kind { return &nodes.ExeNode{} }))
	ev.Register("Test", ctx.buildLink(func() graph.Kind { return &nodes.ExeNode{} }))
	ev.Register("Copy", ctx.buildCopy)
	ev.Register("CopyDir", ctx.buildCopyDir)
	ev.Register("Exec", ctx.buildExec)
	ev.Register("Unity", ctx.buildUnity)
	ev.Register("Alias", ctx.buildAlias)
	ev.Register("TextFile", ctx.buildTextFile)
	ev.Register("ListDependencies", ctx.buildListDependencies)
	ev.Register("VCXProject", ctx.buildVCXProject)
	ev.Register("VSSolution", ctx.buildSLN)
	ev.Register("Settings", ctx.buildSettings)
}

func headerName(call *FuncCallStmt) (string, *ParseError) {
	if len(call.Header) != 1 {
		return "", &ParseError{Code: ErrFunctionRequiresHeader, Row: call.Row, Col: call.Col,
			Message: fmt.Sprintf("%s requires exactly one header argument (its alias name)", call.Name)}
	}
	se, ok := call.Header[0].(*StringExpr)
	if !ok {
		return "", &ParseError{Code: ErrFunctionRequiresHeader, Row: call.Row, Col: call.Col,
			Message: fmt.Sprintf("%s's header must be a string literal", call.Name)}
	}
	return se.Raw, nil
}

func field(scope *Scope, name string) (Value, bool) { return scope.Get(name) }

func stringField(scope *Scope, name string) string {
	if v, ok := field(scope, name); ok {
		return v.Str
	}
	return ""
}

func boolField(scope *Scope, name string) bool {
	if v, ok := field(scope, name); ok {
		return v.Bool
	}
	return false
}

func intField(scope *Scope, name string) int64 {
	if v, ok := field(scope, name); ok {
		return v.Int
	}
	return 0
}

func stringsField(scope *Scope, name string) []string {
	v, ok := field(scope, name)
	if !ok {
		return nil
	}
	ss, _ := v.AsStringSlice()
	return ss
}

func resolveNodeRefs(ctx *Context, names []string) []graph.NodeIndex {
	var out []graph.NodeIndex
	for _, name := range names {
		if n, ok := ctx.Graph.FindNode(name); ok {
			out = append(out, n.Index)
		}
	}
	return out
}

func (ctx *Context) buildCompiler(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	_, regErr := ctx.Graph.Register(alias, &nodes.CompilerNode{
		Executable: stringField(scope, "Executable"),
		Cap:        platform.Default,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	return nil
}

func (ctx *Context) buildObjectList(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	compilerRef := stringField(scope, "Compiler")
	compilerNode, _ := ctx.Graph.FindNode(compilerRef)
	compilerIdx := graph.InvalidIndex
	var compilerExe string
	if compilerNode != nil {
		compilerIdx = compilerNode.Index
		if cn, ok := compilerNode.Kind.(*nodes.CompilerNode); ok {
			compilerExe = cn.Executable
		}
	}

	cfg := nodes.ObjectCompileConfig{
		Compiler:      compilerIdx,
		CompilerExe:   compilerExe,
		Args:          stringsField(scope, "CompilerOptions"),
		OutputExt:     ".obj",
		Distributable: boolField(scope, "AllowDistribution"),
		Cacheable:     boolField(scope, "AllowCaching"),
		Cache:         ctx.Cache,
		LightCache:    ctx.LightCache,
		Distributor:   ctx.Distributor,
		Cap:           platform.Default,
	}

	var objIndices []graph.NodeIndex
	for _, path := range stringsField(scope, "CompilerInputFiles") {
		fileNode, fErr := ctx.Graph.Register(path, &nodes.FileNode{Cap: platform.Default})
		if fErr != nil {
			return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: fErr.Error()}
		}
		outputPath := path + cfg.OutputExt
		objNode, oErr := ctx.Graph.Register(outputPath, &nodes.ObjectNode{
			Input:         fileNode.Index,
			InputPath:     path,
			Compiler:      cfg.Compiler,
			CompilerExe:   cfg.CompilerExe,
			Args:          cfg.Args,
			OutputPath:    outputPath,
			Distributable: cfg.Distributable,
			Cacheable:     cfg.Cacheable,
			Cache:         cfg.Cache,
			LightCache:    cfg.LightCache,
			Distributor:   cfg.Distributor,
			Cap:           cfg.Cap,
		})
		if oErr != nil {
			return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: oErr.Error()}
		}
		if compilerNode != nil {
			objNode.AddStatic(compilerNode.Index)
		}
		objNode.AddStatic(fileNode.Index)
		objIndices = append(objIndices, objNode.Index)
	}

	listNode := &nodes.ObjectListNode{
		Objects: objIndices,
		DirPath: graph.InvalidIndex,
		Unity:   graph.InvalidIndex,
		Config:  cfg,
	}

	// CompilerInputPath names a directory to scan at build time (the
	// original's dynamic-object flow): the files it yields aren't known
	// until the DirectoryListNode itself has run, so the per-file
	// ObjectNodes are created later, in GatherDynamicDeps, not here.
	if dirPath := stringField(scope, "CompilerInputPath"); dirPath != "" {
		dl, dlErr := ctx.Graph.Register(alias+".dir", &nodes.DirectoryListNode{
			Path:            dirPath,
			Patterns:        stringsField(scope, "CompilerInputPattern"),
			Recurse:         boolField(scope, "CompilerInputPathRecurse"),
			ExcludePaths:    stringsField(scope, "CompilerInputExcludePath"),
			ExcludeFiles:    stringsField(scope, "CompilerInputExcludedFiles"),
			ExcludePatterns: stringsField(scope, "CompilerInputExcludePattern"),
		})
		if dlErr != nil {
			return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: dlErr.Error()}
		}
		listNode.DirPath = dl.Index
	}

	// CompilerInputUnity names a Unity() alias: its amalgamations and
	// isolated files become this list's compile units once it has built,
	// per the data model's "ObjectListNode — a bag of ObjectNodes over
	// directory lists / unity nodes."
	if unityRef := stringField(scope, "CompilerInputUnity"); unityRef != "" {
		unityNode, ok := ctx.Graph.FindNode(unityRef)
		if !ok {
			return &ParseError{Code: ErrUnknownVariable, Row: call.Row, Col: call.Col,
				Message: fmt.Sprintf("ObjectList: CompilerInputUnity %q is not a registered Unity node", unityRef)}
		}
		listNode.Unity = unityNode.Index
	}

	n, lErr := ctx.Graph.Register(alias, listNode)
	if lErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: lErr.Error()}
	}
	for _, idx := range objIndices {
		n.AddStatic(idx)
	}
	if listNode.DirPath != graph.InvalidIndex {
		n.AddStatic(listNode.DirPath)
	}
	if listNode.Unity != graph.InvalidIndex {
		n.AddStatic(listNode.Unity)
	}
	return nil
}

// buildLink returns a Builder shared by Library/DLL/Executable/Test: all
// four link/archive over an ObjectList and other file inputs with the same
// %1/%2 argument template, per link.go's linkCommon.
func (ctx *Context) buildLink(newKind func() graph.Kind) Builder {
	return func(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
		alias, err := headerName(call)
		if err != nil {
			return err
		}
		libraries := stringsField(scope, "Libraries")
		inputs := resolveNodeRefs(ctx, libraries)

		kind := newKind()
		switch k := kind.(type) {
		case *nodes.LibraryNode:
			k.Tool = stringField(scope, "Librarian")
			k.ArgTemplate = stringsField(scope, "LibrarianOptions")
			k.Inputs = inputs
			k.OutputPath = stringField(scope, "LibrarianOutput")
			k.Cap = platform.Default
		case *nodes.DLLNode:
			k.Tool = stringField(scope, "Linker")
			k.ArgTemplate = stringsField(scope, "LinkerOptions")
			k.Inputs = inputs
			k.OutputPath = stringField(scope, "LinkerOutput")
			k.Cap = platform.Default
		case *nodes.ExeNode:
			k.Tool = stringField(scope, "Linker")
			k.ArgTemplate = stringsField(scope, "LinkerOptions")
			k.Inputs = inputs
			k.OutputPath = stringField(scope, "LinkerOutput")
			k.Cap = platform.Default
		}

		n, regErr := ctx.Graph.Register(alias, kind)
		if regErr != nil {
			return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
		}
		for _, idx := range inputs {
			n.AddStatic(idx)
		}
		return nil
	}
}

func (ctx *Context) buildCopy(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	src := stringField(scope, "Source")
	dest := stringField(scope, "Dest")
	srcNode, sErr := ctx.Graph.Register(src, &nodes.FileNode{Cap: platform.Default})
	if sErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: sErr.Error()}
	}
	n, regErr := ctx.Graph.Register(alias, &nodes.CopyNode{
		Source: srcNode.Index, SourcePath: src, Dest: dest, Cap: platform.Default,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	n.AddStatic(srcNode.Index)
	return nil
}

func (ctx *Context) buildCopyDir(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	src := stringField(scope, "Source")
	dest := stringField(scope, "Dest")

	dl, dlErr := ctx.Graph.Register(alias+".dir", &nodes.DirectoryListNode{
		Path:            src,
		Patterns:        stringsField(scope, "SourcePattern"),
		Recurse:         boolField(scope, "SourceRecurse"),
		ExcludePaths:    stringsField(scope, "SourceExcludePaths"),
		ExcludeFiles:    stringsField(scope, "SourceExcludeFiles"),
		ExcludePatterns: stringsField(scope, "SourceExcludePattern"),
	})
	if dlErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: dlErr.Error()}
	}

	n, regErr := ctx.Graph.Register(alias, &nodes.CopyDirNode{
		Source: dl.Index,
		Dest:   dest,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	n.AddStatic(dl.Index)
	return nil
}

func (ctx *Context) buildExec(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	_, regErr := ctx.Graph.Register(alias, &nodes.ExecNode{
		Tool:             stringField(scope, "ExecExecutable"),
		Args:             stringsField(scope, "ExecArguments"),
		WorkingDir:       stringField(scope, "ExecWorkingDir"),
		OutputPath:       stringField(scope, "ExecOutput"),
		ExpectedExitCode: int(intField(scope, "ExecReturnCode")),
		Cap:              platform.Default,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	return nil
}

func (ctx *Context) buildUnity(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	_, regErr := ctx.Graph.Register(alias, &nodes.UnityNode{
		Inputs:          graph.InvalidIndex,
		Files:           stringsField(scope, "UnityInputFiles"),
		NumFiles:        int(intField(scope, "UnityNumFiles")),
		OutputPath:      stringField(scope, "UnityOutputPath"),
		OutputPattern:   stringField(scope, "UnityOutputPattern"),
		ForceIsolate:    stringsField(scope, "UnityInputIsolatedFiles"),
		IsolateWritable: boolField(scope, "UnityInputIsolateWritableFiles"),
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	return nil
}

func (ctx *Context) buildAlias(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	targets := resolveNodeRefs(ctx, stringsField(scope, "Targets"))
	n, regErr := ctx.Graph.Register(alias, &nodes.AliasNode{Targets: targets})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	for _, idx := range targets {
		n.AddStatic(idx)
	}
	return nil
}

func (ctx *Context) buildTextFile(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	_, regErr := ctx.Graph.Register(alias, &nodes.TextFileNode{
		OutputPath: stringField(scope, "TextFileOutputPath"),
		Content:    stringField(scope, "TextFileContents"),
		Cap:        platform.Default,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	return nil
}

func (ctx *Context) buildListDependencies(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	rootName := stringField(scope, "Node")
	rootNode, ok := ctx.Graph.FindNode(rootName)
	if !ok {
		return &ParseError{Code: ErrUnknownVariable, Row: call.Row, Col: call.Col,
			Message: fmt.Sprintf("ListDependencies: unknown node %q", rootName)}
	}
	n, regErr := ctx.Graph.Register(alias, &nodes.ListDependenciesNode{
		Root: rootNode.Index, OutputPath: stringField(scope, "ListDependenciesOutput"),
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	n.AddStatic(rootNode.Index)
	return nil
}

func (ctx *Context) buildVCXProject(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	_, regErr := ctx.Graph.Register(alias, &nodes.VCXProjectNode{
		ProjectName: alias,
		OutputPath:  stringField(scope, "ProjectOutput"),
		Items:       stringsField(scope, "ProjectFiles"),
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	return nil
}

func (ctx *Context) buildSLN(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	alias, err := headerName(call)
	if err != nil {
		return err
	}
	projects := resolveNodeRefs(ctx, stringsField(scope, "SolutionProjects"))
	n, regErr := ctx.Graph.Register(alias, &nodes.SLNNode{
		SolutionName: alias, OutputPath: stringField(scope, "SolutionOutput"), Projects: projects,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	for _, idx := range projects {
		n.AddStatic(idx)
	}
	return nil
}

func (ctx *Context) buildSettings(ev *Evaluator, call *FuncCallStmt, scope *Scope) *ParseError {
	env := map[string]string{}
	if v, ok := field(scope, "Environment"); ok {
		for _, s := range v.Strs {
			env[s] = ""
		}
	}
	_, regErr := ctx.Graph.Register("Settings", &nodes.SettingsNode{
		CachePath: stringField(scope, "CachePath"),
		Workers:   stringsField(scope, "Workers"),
		Environment: env,
	})
	if regErr != nil {
		return &ParseError{Code: ErrFunctionRequiresBody, Row: call.Row, Col: call.Col, Message: regErr.Error()}
	}
	return nil
}
