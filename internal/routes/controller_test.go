package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actionNames(c Controller) []string {
	var out []string
	for _, a := range c.Actions {
		out = append(out, a.Name)
	}
	return out
}

func TestExtractControllersConstructorMiddleware(t *testing.T) {
	root := parsePHP(t, `<?php
namespace App\Http\Controllers;

class PostController extends Controller
{
    public function __construct()
    {
        $this->middleware('auth')->except(['index', 'show']);
        $this->middleware(['throttle:10,1'])->only('store');
    }

    public function index() {}
    public function show($id) {}
    public function store() {}
    public function destroy($id) {}
    protected function helper() {}
    private function secret() {}
    public static function make() {}
}
`)
	controllers := ExtractControllers(root, "app/Http/Controllers/PostController.php")
	require.Len(t, controllers, 1)
	c := controllers[0]
	assert.Equal(t, "PostController", c.Name)
	assert.Equal(t, []string{"index", "show", "store", "destroy"}, actionNames(c))
	require.Len(t, c.Middleware, 2)

	assert.Equal(t, []string{"auth", "throttle:10,1"}, c.MiddlewareFor("store"))
	assert.Equal(t, []string{"auth"}, c.MiddlewareFor("destroy"))
	assert.Empty(t, c.MiddlewareFor("index"))
}

func TestExtractControllersStaticMiddleware(t *testing.T) {
	root := parsePHP(t, `<?php
use Illuminate\Routing\Controllers\HasMiddleware;
use Illuminate\Routing\Controllers\Middleware;

class CommentController implements HasMiddleware
{
    public static function middleware(): array
    {
        return [
            'web',
            new Middleware('auth', only: ['store', 'update']),
            new Middleware('log', except: ['index']),
        ];
    }

    public function store() {}
    public function update() {}
    public function index() {}
}
`)
	controllers := ExtractControllers(root, "CommentController.php")
	require.Len(t, controllers, 1)
	c := controllers[0]
	assert.Equal(t, []string{"store", "update", "index"}, actionNames(c))

	p := DefaultPolicy()
	assert.True(t, p.IsAuthenticated(c.MiddlewareFor("store")))
	assert.True(t, p.IsAuthenticated(c.MiddlewareFor("update")))
	assert.False(t, p.IsAuthenticated(c.MiddlewareFor("index")))
	assert.Equal(t, []string{"web"}, c.MiddlewareFor("index"))
}

func TestControllerMiddlewareApplies(t *testing.T) {
	m := ControllerMiddleware{Name: "auth", Only: []string{"Store"}}
	assert.True(t, m.Applies("store"))
	assert.False(t, m.Applies("index"))

	m = ControllerMiddleware{Name: "auth", Except: []string{"index"}}
	assert.False(t, m.Applies("index"))
	assert.True(t, m.Applies("destroy"))
}
